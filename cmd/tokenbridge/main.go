package main

import (
	"fmt"
	"os"

	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/pkg/version"

	"github.com/spf13/cobra"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tokenbridge",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.CommandName, version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   cnst.CommandName,
		Short: "OAuth2 convert-token service",
		Long:  `tokenbridge exchanges identity provider tokens for first-party OAuth2 tokens and manages their lifecycle`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.TokenBridgeYaml, "path to configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(appCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
