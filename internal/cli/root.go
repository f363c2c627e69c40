// Package cli implements the granadilla command tree. Every command maps
// onto one repository or engine operation; the commands themselves only
// parse arguments, prompt for secrets and print results.
package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
	"github.com/Polyconseil/granadilla/internal/org"
)

type app struct {
	cfg    *config.Config
	client directory.Client
	dir    *org.Directory
	log    zerolog.Logger
}

var (
	flagConfig  string
	flagVerbose bool

	current *app
)

var rootCmd = &cobra.Command{
	Use:           "granadilla",
	Short:         "Manage the LDAP-backed organizational directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()

		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		dirCfg := directory.DefaultConfig()
		dirCfg.URI = cfg.URI
		dirCfg.BindDN = cfg.BindDN
		dirCfg.BindPassword = cfg.BindPassword
		dirCfg.Timeout = cfg.Timeout
		dirCfg.UseTLS = cfg.UseTLS
		dirCfg.SkipTLS = cfg.SkipTLS
		dirCfg.KerberosRealm = cfg.KerberosRealm
		dirCfg.KerberosKeytab = cfg.KerberosKeytab
		dirCfg.KerberosConfig = cfg.KerberosConfig
		client, err := directory.Dial(dirCfg, log)
		if err != nil {
			return err
		}

		current = &app{
			cfg:    cfg,
			client: client,
			dir:    org.New(client, cfg, log),
			log:    log,
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil && current.client != nil {
			current.client.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// promptPassword reads a password twice from the terminal without echo and
// insists both reads match.
func promptPassword(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s (again): ", prompt)
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

// printGenerated hands a one-time generated credential to the operator.
func printGenerated(label, plaintext string) {
	fmt.Printf("%s password: %s\n", label, plaintext)
	fmt.Fprintln(os.Stderr, "store it now, it will not be shown again")
}
