// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-cryptoki.
//
// go-cryptoki is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

var initTokenCmd = &cobra.Command{
	Use:   "init-token",
	Short: "Initialize the token in a slot",
	Long: `Initialize (or wipe and re-initialize) the token in the selected
slot, setting its label and Security Officer PIN. Destroys every
object on the token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		soPIN, _ := cmd.Flags().GetString("so-pin")
		label, _ := cmd.Flags().GetString("label")
		if soPIN == "" {
			return fmt.Errorf("--so-pin is required")
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		if err := ctx.InitToken(slot(), []byte(soPIN), label); err != nil {
			return err
		}
		fmt.Printf("token initialized in slot %d\n", slotID)
		return nil
	},
}

var initPINCmd = &cobra.Command{
	Use:   "init-pin",
	Short: "Set the user PIN",
	Long:  `Set the user PIN of the selected token. Requires the Security Officer PIN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		soPIN, _ := cmd.Flags().GetString("so-pin")
		userPIN, _ := cmd.Flags().GetString("pin")
		if soPIN == "" || userPIN == "" {
			return fmt.Errorf("--so-pin and --pin are required")
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		h, err := ctx.OpenSession(slot(), true)
		if err != nil {
			return err
		}
		if err := ctx.Login(h, types.RoleSecurityOfficer, []byte(soPIN)); err != nil {
			return err
		}
		if err := ctx.InitPIN(h, []byte(userPIN)); err != nil {
			return err
		}
		fmt.Printf("user PIN set for slot %d\n", slotID)
		return nil
	},
}

var listSlotsCmd = &cobra.Command{
	Use:   "list-slots",
	Short: "List slots and token presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		slots, err := ctx.ListSlots(false)
		if err != nil {
			return err
		}
		for _, d := range slots {
			present := "token present"
			if !d.TokenPresent {
				present = "empty"
			}
			fmt.Printf("slot %d: %s (%s)\n", d.ID, d.Description, present)
		}
		return nil
	},
}

var tokenInfoCmd = &cobra.Command{
	Use:   "token-info",
	Short: "Show the token in the selected slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		info, err := ctx.GetTokenInfo(slot())
		if err != nil {
			return err
		}
		fmt.Printf("label:            %s\n", info.Label)
		fmt.Printf("serial:           %s\n", info.SerialNumber)
		fmt.Printf("model:            %s\n", info.Model)
		fmt.Printf("so pin set:       %v (locked: %v)\n", info.SOPINSet, info.SOPINLocked)
		fmt.Printf("user pin set:     %v (locked: %v)\n", info.UserPINSet, info.UserPINLocked)
		fmt.Printf("objects:          %d\n", info.ObjectCount)
		fmt.Printf("mechanisms:       %d\n", info.MechanismsCount)
		fmt.Printf("max pin attempts: %d\n", info.MaxPINAttempts)
		return nil
	},
}

func init() {
	initTokenCmd.Flags().String("so-pin", "", "Security Officer PIN")
	initTokenCmd.Flags().String("label", "", "token label")
	initPINCmd.Flags().String("so-pin", "", "Security Officer PIN")
	initPINCmd.Flags().String("pin", "", "new user PIN")
}
