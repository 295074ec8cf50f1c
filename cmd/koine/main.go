// SPDX-License-Identifier: Apache-2.0

// Command koine runs either side of the AMD SEV attestation handshake
// from the command line, backed by certificate and secret material on
// disk.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/enarx-archive/koine"
)

var (
	configPath string
	verbose    bool
	logger     zerolog.Logger
)

// protoIdent is the protocol identity a keep manager advertises to its
// peers.
func protoIdent() string {
	return koine.ProtoName + "/" + koine.ProtoVersion
}

var rootCmd = &cobra.Command{
	Use:           "koine",
	Short:         "AMD SEV remote attestation for keeps",
	Long:          "koine drives the remote attestation handshake between a tenant and the host launching secure VMs (keeps) on its behalf.",
	Version:       protoIdent(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the keep backends available on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		contracts := koine.AvailableContracts()
		fmt.Println(protoIdent())
		if len(contracts) == 0 {
			fmt.Println("no keep backends available")
			return nil
		}
		for _, c := range contracts {
			fmt.Printf("%s  %s\n", c.ID, c.Backend)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(contractsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
