// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cubedevinc/target-postgres/pkg/config"
	"github.com/cubedevinc/target-postgres/pkg/driver"
	"github.com/cubedevinc/target-postgres/pkg/target"
)

// Version is the sink's version string.
var Version = "development"

var configPath string

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the sink's JSON config file")
}

var rootCmd = &cobra.Command{
	Use:          "target-postgres",
	Short:        "Loads a tap's record stream into PostgreSQL",
	SilenceUsage: true,
	Version:      Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		database, err := cfg.Open()
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer database.Close()

		logger := target.NewLogger()
		d := driver.New(database, cfg, logger)
		return d.Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
