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
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-cryptoki/pkg/cryptoki"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// userSession opens a session and logs in as the user.
func userSession(ctx *cryptoki.Context, pin string) (types.SessionHandle, error) {
	h, err := ctx.OpenSession(slot(), true)
	if err != nil {
		return 0, err
	}
	if err := ctx.Login(h, types.RoleUser, []byte(pin)); err != nil {
		return 0, err
	}
	return h, nil
}

// findKey locates a key object by label.
func findKey(ctx *cryptoki.Context, h types.SessionHandle, label string) (types.ObjectHandle, error) {
	found, err := ctx.FindAll(h, types.Template{
		types.StringAttribute(types.AttrLabel, label),
	})
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("no object labeled %q in slot %d", label, slotID)
	}
	return found[0], nil
}

var generateCmd = &cobra.Command{
	Use:   "generate <label>",
	Short: "Generate a key on the token",
	Long: `Generate a key as a private token object. Symmetric algorithms
(aes, hmac) produce a secret key; asymmetric ones (ecdsa, ed25519,
rsa) produce a key pair whose parts share the label.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		pin, _ := cmd.Flags().GetString("pin")
		algorithm, _ := cmd.Flags().GetString("algorithm")
		bits, _ := cmd.Flags().GetInt("bits")
		curve, _ := cmd.Flags().GetString("curve")
		length, _ := cmd.Flags().GetInt("length")
		if pin == "" {
			return fmt.Errorf("--pin is required")
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		h, err := userSession(ctx, pin)
		if err != nil {
			return err
		}

		scope := types.Template{
			types.BoolAttribute(types.AttrToken, true),
			types.BoolAttribute(types.AttrPrivate, true),
			types.StringAttribute(types.AttrLabel, label),
		}

		switch algorithm {
		case "aes":
			tmpl := append(scope,
				types.UintAttribute(types.AttrValueLen, uint32(length)),
				types.BoolAttribute(types.AttrEncrypt, true),
				types.BoolAttribute(types.AttrDecrypt, true),
				types.BoolAttribute(types.AttrWrap, true),
				types.BoolAttribute(types.AttrUnwrap, true),
				types.BoolAttribute(types.AttrSensitive, true))
			if _, err := ctx.GenerateKey(h, types.NewMechanism(types.MechAESKeyGen), tmpl); err != nil {
				return err
			}
		case "hmac":
			tmpl := append(scope,
				types.UintAttribute(types.AttrValueLen, uint32(length)),
				types.BoolAttribute(types.AttrSign, true),
				types.BoolAttribute(types.AttrVerify, true),
				types.BoolAttribute(types.AttrSensitive, true))
			if _, err := ctx.GenerateKey(h, types.NewMechanism(types.MechHMACKeyGen), tmpl); err != nil {
				return err
			}
		case "ecdsa", "ed25519", "rsa":
			var m types.Mechanism
			switch algorithm {
			case "ecdsa":
				m = types.Mechanism{Type: types.MechECDSAKeyPair, Parameter: []byte(curve)}
			case "ed25519":
				m = types.NewMechanism(types.MechEd25519KeyPair)
			case "rsa":
				m = types.NewMechanism(types.MechRSAKeyPair)
			}
			pubTmpl := types.Template{
				types.BoolAttribute(types.AttrToken, true),
				types.StringAttribute(types.AttrLabel, label),
				types.BoolAttribute(types.AttrVerify, true),
			}
			if algorithm == "rsa" {
				pubTmpl = append(pubTmpl, types.UintAttribute(types.AttrModulusBits, uint32(bits)))
			}
			privTmpl := append(scope,
				types.BoolAttribute(types.AttrSign, true),
				types.BoolAttribute(types.AttrSensitive, true))
			if _, _, err := ctx.GenerateKeyPair(h, m, pubTmpl, privTmpl); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown algorithm %q", algorithm)
		}

		if err := ctx.SaveToken(slot()); err != nil {
			return err
		}
		fmt.Printf("generated %s key %q in slot %d\n", algorithm, label, slotID)
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign <label> <file>",
	Short: "Sign a file with a token key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, _ := cmd.Flags().GetString("pin")
		mech, _ := cmd.Flags().GetString("mechanism")
		if pin == "" {
			return fmt.Errorf("--pin is required")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		h, err := userSession(ctx, pin)
		if err != nil {
			return err
		}
		key, err := findKey(ctx, h, args[0])
		if err != nil {
			return err
		}

		sig, err := ctx.Sign(h, types.NewMechanism(types.MechanismType(mech)), key, data)
		if err != nil {
			return err
		}
		fmt.Println(base64.StdEncoding.EncodeToString(sig))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <label> <file> <signature-base64>",
	Short: "Verify a signature with a token key",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, _ := cmd.Flags().GetString("pin")
		mech, _ := cmd.Flags().GetString("mechanism")
		if pin == "" {
			return fmt.Errorf("--pin is required")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		sig, err := base64.StdEncoding.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("bad signature encoding: %w", err)
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		h, err := userSession(ctx, pin)
		if err != nil {
			return err
		}
		key, err := findKey(ctx, h, args[0])
		if err != nil {
			return err
		}

		if err := ctx.Verify(h, types.NewMechanism(types.MechanismType(mech)), key, data, sig); err != nil {
			return err
		}
		fmt.Println("signature valid")
		return nil
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest <file>",
	Short: "Digest a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mech, _ := cmd.Flags().GetString("mechanism")
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		h, err := ctx.OpenSession(slot(), false)
		if err != nil {
			return err
		}
		sum, err := ctx.Digest(h, types.NewMechanism(types.MechanismType(mech)), data)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", sum)
		return nil
	},
}

var randomCmd = &cobra.Command{
	Use:   "random <bytes>",
	Short: "Generate random bytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var n int
		if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("byte count must be a positive integer")
		}

		ctx, teardown, err := newProvider()
		if err != nil {
			return err
		}
		defer teardown()

		h, err := ctx.OpenSession(slot(), false)
		if err != nil {
			return err
		}
		out, err := ctx.GenerateRandom(h, n)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", out)
		return nil
	},
}

func init() {
	generateCmd.Flags().String("pin", "", "user PIN")
	generateCmd.Flags().String("algorithm", "aes", "aes, hmac, ecdsa, ed25519, rsa")
	generateCmd.Flags().Int("length", 32, "symmetric key length in bytes")
	generateCmd.Flags().Int("bits", 3072, "RSA modulus bits")
	generateCmd.Flags().String("curve", "P-256", "ECDSA curve")
	signCmd.Flags().String("pin", "", "user PIN")
	signCmd.Flags().String("mechanism", string(types.MechECDSASHA256), "signature mechanism")
	verifyCmd.Flags().String("pin", "", "user PIN")
	verifyCmd.Flags().String("mechanism", string(types.MechECDSASHA256), "signature mechanism")
	digestCmd.Flags().String("mechanism", string(types.MechSHA256), "digest mechanism")
}
