package main

import (
	"os"

	"github.com/Polyconseil/granadilla/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
