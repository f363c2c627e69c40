package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Polyconseil/granadilla/internal/org"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage device accounts",
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <owner> <name>",
	Short: "Create a device with a generated password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, plaintext, err := current.dir.CreateDevice(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printGenerated("device "+device.Login(), plaintext)
		return nil
	},
}

var deviceDelCmd = &cobra.Command{
	Use:   "del <owner> <name>",
	Short: "Delete a device and resync its device groups",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Devices.Delete(cmd.Context(), args[0], args[1])
	},
}

var deviceListCmd = &cobra.Command{
	Use:   "list [owner]",
	Short: "List devices, optionally for one owner",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var devices []*org.Device
		var err error
		if len(args) == 1 {
			devices, err = current.dir.Devices.OwnedBy(cmd.Context(), args[0])
		} else {
			devices, err = current.dir.Devices.List(cmd.Context())
		}
		if err != nil {
			return err
		}
		for _, device := range devices {
			fmt.Printf("%s\t%s\t%s\n", device.Login(), device.Owner, device.Name)
		}
		return nil
	},
}

var devicePasswdCmd = &cobra.Command{
	Use:   "passwd <owner> <name>",
	Short: "Rotate a device's generated password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := current.dir.RotateDevicePassword(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printGenerated("device "+args[0]+"_"+args[1], plaintext)
		return nil
	},
}

var deviceGroupCmd = &cobra.Command{
	Use:   "device-group",
	Short: "Manage derived device groups",
}

var deviceGroupAddCmd = &cobra.Command{
	Use:   "add <name> <group>",
	Short: "Create a device group bound to an existing posix group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.Sync.InitDeviceGroup(cmd.Context(), args[0], args[1])
	},
}

var deviceGroupDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete a device group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return current.dir.DeviceGroups.Delete(cmd.Context(), args[0])
	},
}

var deviceGroupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List device groups with their member devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := current.dir.DeviceGroups.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, group := range groups {
			fmt.Printf("%s\t%s\t%s\n", group.Name, group.GroupDN, strings.Join(group.Members, ","))
		}
		return nil
	},
}

func init() {
	deviceCmd.AddCommand(deviceAddCmd, deviceDelCmd, deviceListCmd, devicePasswdCmd)
	deviceGroupCmd.AddCommand(deviceGroupAddCmd, deviceGroupDelCmd, deviceGroupListCmd)
	rootCmd.AddCommand(deviceCmd, deviceGroupCmd)
}
