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

// Package cli implements the cryptoki-admin command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-cryptoki/internal/config"
	"github.com/jeremyhahn/go-cryptoki/pkg/cryptoki"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

var (
	configFile string
	slotID     uint
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "cryptoki-admin",
	Short: "Administer go-cryptoki software tokens",
	Long: `cryptoki-admin manages go-cryptoki software tokens: initialize
tokens and PINs, inspect slots, and exercise key generation and
crypto operations against a configured storage backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./cryptoki.yaml, /etc/cryptoki/cryptoki.yaml)")
	rootCmd.PersistentFlags().UintVar(&slotID, "slot", 1, "slot ID to operate on")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	rootCmd.AddCommand(initTokenCmd)
	rootCmd.AddCommand(initPINCmd)
	rootCmd.AddCommand(listSlotsCmd)
	rootCmd.AddCommand(tokenInfoCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(randomCmd)
}

// newProvider loads configuration and initializes a Context. The caller
// must invoke the returned teardown.
func newProvider() (*cryptoki.Context, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		cfg.Logging.Debug = true
	}
	providerCfg, err := cfg.Provider()
	if err != nil {
		return nil, nil, err
	}

	ctx := cryptoki.New()
	if err := ctx.Initialize(providerCfg); err != nil {
		providerCfg.Storage.Close()
		return nil, nil, err
	}
	teardown := func() {
		ctx.Finalize()
		providerCfg.Storage.Close()
	}
	return ctx, teardown, nil
}

func slot() types.SlotID {
	return types.SlotID(slotID)
}
