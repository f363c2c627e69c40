package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Polyconseil/granadilla/internal/org"
)

var extuserCmd = &cobra.Command{
	Use:   "extuser",
	Short: "Manage external contacts",
}

var (
	flagExtFirst string
	flagExtLast  string
)

var extuserAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create an external contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Contacts.Save(cmd.Context(), &org.Contact{
			Email:     args[0],
			FirstName: flagExtFirst,
			LastName:  flagExtLast,
		})
	},
}

var extuserDelCmd = &cobra.Command{
	Use:   "del <email>",
	Short: "Delete an external contact and its ACL memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Sync.DeleteContact(cmd.Context(), args[0])
	},
}

var extuserListCmd = &cobra.Command{
	Use:   "list",
	Short: "List external contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		contacts, err := current.dir.Contacts.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, contact := range contacts {
			fmt.Printf("%s\t%s\n", contact.Email, contact.FullName)
		}
		return nil
	},
}

var extuserModCmd = &cobra.Command{
	Use:   "mod <email> <attribute> <value>",
	Short: "Modify one attribute of an external contact",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Contacts.ModifyAttribute(cmd.Context(), args[0], args[1], args[2])
	},
}

var extuserGroupsCmd = &cobra.Command{
	Use:   "groups <email>",
	Short: "List the groups whose ACL includes an external contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := current.dir.ContactGroups(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	extuserAddCmd.Flags().StringVar(&flagExtFirst, "first", "", "first name")
	extuserAddCmd.Flags().StringVar(&flagExtLast, "last", "", "last name")
	_ = extuserAddCmd.MarkFlagRequired("first")
	_ = extuserAddCmd.MarkFlagRequired("last")

	extuserCmd.AddCommand(extuserAddCmd, extuserDelCmd, extuserListCmd, extuserModCmd, extuserGroupsCmd)
	rootCmd.AddCommand(extuserCmd)
}
