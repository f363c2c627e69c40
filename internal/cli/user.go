package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Polyconseil/granadilla/internal/org"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage person accounts",
}

var (
	flagUserFirst string
	flagUserLast  string
	flagUserEmail string
)

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a person account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user := &org.User{
			Username:  args[0],
			FirstName: flagUserFirst,
			LastName:  flagUserLast,
			Email:     flagUserEmail,
		}
		plaintext, err := promptPassword("password for " + user.Username)
		if err != nil {
			return err
		}
		return current.dir.CreateUser(cmd.Context(), user, plaintext)
	},
}

var userDelCmd = &cobra.Command{
	Use:   "del <username>",
	Short: "Delete a person account and its memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		devices, err := current.dir.Devices.OwnedBy(ctx, args[0])
		if err != nil {
			return err
		}
		for _, device := range devices {
			current.log.Warn().Str("device", device.Login()).
				Msg("device stays behind; delete it with 'device del' if unwanted")
		}
		return current.dir.Sync.DeleteUser(ctx, args[0])
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List person accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := current.dir.Users.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, user := range users {
			fmt.Printf("%s\t%d\t%s\t%s\n", user.Username, user.UID, user.FullName, user.Email)
		}
		return nil
	},
}

var userModCmd = &cobra.Command{
	Use:   "mod <username> <attribute> <value>",
	Short: "Modify one attribute of a person account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Users.ModifyAttribute(cmd.Context(), args[0], args[1], args[2])
	},
}

var userGroupsCmd = &cobra.Command{
	Use:   "groups <username>",
	Short: "List the groups a person account belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := current.dir.Groups.ContainingUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, group := range groups {
			fmt.Println(group.Name)
		}
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change a person account's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := promptPassword("new password for " + args[0])
		if err != nil {
			return err
		}
		return current.dir.SetUserPassword(cmd.Context(), args[0], plaintext)
	},
}

func init() {
	userAddCmd.Flags().StringVar(&flagUserFirst, "first", "", "first name")
	userAddCmd.Flags().StringVar(&flagUserLast, "last", "", "last name")
	userAddCmd.Flags().StringVar(&flagUserEmail, "email", "", "email address (derived from the name when empty)")
	_ = userAddCmd.MarkFlagRequired("first")
	_ = userAddCmd.MarkFlagRequired("last")

	userCmd.AddCommand(userAddCmd, userDelCmd, userListCmd, userModCmd, userGroupsCmd, userPasswdCmd)
	rootCmd.AddCommand(userCmd)
}
