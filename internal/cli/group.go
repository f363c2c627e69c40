package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage posix groups",
}

var (
	flagGroupDescription string
	flagGroupGID         int
)

var groupAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a posix group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := current.dir.CreateGroup(cmd.Context(), args[0], flagGroupDescription, flagGroupGID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d\n", group.Name, group.GID)
		return nil
	},
}

var groupDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete a posix group and its derived entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Sync.DeleteGroup(cmd.Context(), args[0])
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posix groups with their members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := current.dir.Groups.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, group := range groups {
			fmt.Printf("%s\t%d\t%s\n", group.Name, group.GID, strings.Join(group.Members, ","))
		}
		return nil
	},
}

var groupShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a group's gid, members and non-members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		group, err := current.dir.Groups.Get(ctx, args[0])
		if err != nil {
			return err
		}
		users, err := current.dir.Users.List(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%s\t%d\n", group.Name, group.GID)
		fmt.Println("members:")
		for _, member := range group.Members {
			fmt.Printf("  %s\n", member)
		}
		fmt.Println("non-members:")
		for _, user := range users {
			if !group.HasMember(user.Username) {
				fmt.Printf("  %s\n", user.Username)
			}
		}
		return nil
	},
}

var flagMemberExternal bool

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage group membership",
}

var memberAddCmd = &cobra.Command{
	Use:   "add <group> <username|email>",
	Short: "Add a user (or external contact) to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagMemberExternal {
			return current.dir.Sync.AddContactToGroup(cmd.Context(), args[1], args[0])
		}
		return current.dir.Sync.AddUserToGroup(cmd.Context(), args[1], args[0])
	},
}

var memberDelCmd = &cobra.Command{
	Use:   "del <group> <username|email>",
	Short: "Remove a user (or external contact) from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagMemberExternal {
			return current.dir.Sync.RemoveContactFromGroup(cmd.Context(), args[1], args[0])
		}
		return current.dir.Sync.RemoveUserFromGroup(cmd.Context(), args[1], args[0])
	},
}

func init() {
	groupAddCmd.Flags().StringVar(&flagGroupDescription, "description", "", "group description")
	groupAddCmd.Flags().IntVar(&flagGroupGID, "gid", 0, "posix gid (assigned automatically when omitted)")

	memberAddCmd.Flags().BoolVar(&flagMemberExternal, "external", false, "the member is an external contact, identified by email")
	memberDelCmd.Flags().BoolVar(&flagMemberExternal, "external", false, "the member is an external contact, identified by email")

	groupCmd.AddCommand(groupAddCmd, groupDelCmd, groupListCmd, groupShowCmd)
	memberCmd.AddCommand(memberAddCmd, memberDelCmd)
	rootCmd.AddCommand(groupCmd, memberCmd)
}
