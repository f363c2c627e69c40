package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage service accounts",
}

var flagServiceDescription string

var serviceAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a service account with a generated password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := current.dir.CreateService(cmd.Context(), args[0], flagServiceDescription)
		if err != nil {
			return err
		}
		printGenerated("service "+args[0], plaintext)
		return nil
	},
}

var serviceDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete a service account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Services.Delete(cmd.Context(), args[0])
	},
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List service accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := current.dir.Services.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, svc := range services {
			fmt.Printf("%s\t%d\t%s\n", svc.Name, svc.UID, svc.Description)
		}
		return nil
	},
}

var servicePasswdCmd = &cobra.Command{
	Use:   "passwd <name>",
	Short: "Rotate a service account's generated password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := current.dir.RotateServicePassword(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printGenerated("service "+args[0], plaintext)
		return nil
	},
}

var serviceModCmd = &cobra.Command{
	Use:   "mod <name> <attribute> <value>",
	Short: "Modify one attribute of a service account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Services.ModifyAttribute(cmd.Context(), args[0], args[1], args[2])
	},
}

func init() {
	serviceAddCmd.Flags().StringVar(&flagServiceDescription, "description", "", "what the account is for")

	serviceCmd.AddCommand(serviceAddCmd, serviceDelCmd, serviceListCmd, serviceModCmd, servicePasswdCmd)
	rootCmd.AddCommand(serviceCmd)
}
