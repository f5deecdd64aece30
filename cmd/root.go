/* cmd/root.go */

package cmd

import (
	"fmt"
	"os"
	"strings"

	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Subcommands
	"github.com/CodeMonkeyCybersecurity/metis/cmd/audit"
	"github.com/CodeMonkeyCybersecurity/metis/cmd/rollback"
	"github.com/CodeMonkeyCybersecurity/metis/cmd/snapshot"
	"github.com/CodeMonkeyCybersecurity/metis/cmd/sync"

	// Internal packages
	"github.com/CodeMonkeyCybersecurity/metis/pkg/logger"
)

var helpLogged bool // global guard to log help only once

// RootCmd is the base command for metis.
var RootCmd = &cobra.Command{
	Use:   "metis",
	Short: "Metis keeps configuration systems in agreement",
	Long: `Metis synchronizes configuration entities between systems, detects drift
against the last agreed baseline, resolves conflicts, and can roll a system
back to any recorded snapshot. Every state change is recorded in a
tamper-evident audit log.`,

	RunE: metis.Wrap(func(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		fmt.Println("⚠️  No subcommand provided. Try `metis help`.")
		return cmd.Help()
	}),
}

// HelpCmd wraps help so that it can be invoked like a normal command.
var HelpCmd = &cobra.Command{
	Use:   "help",
	Short: "Help about any command",
	Long:  "Displays help for metis or a specific subcommand.",
	RunE: metis.Wrap(func(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return RootCmd.Help()
		}
		c, _, err := RootCmd.Find(args)
		if err != nil || c == nil {
			return fmt.Errorf("command not found: %s", strings.Join(args, " "))
		}
		return c.Help()
	}),
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.SetHelpCommand(HelpCmd)

	log := logger.GetLogger()

	RootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if !helpLogged {
			log.Info("Global help triggered via --help or -h", zap.String("command", cmd.Name()))
			helpLogged = true
			defer log.Info("Global help display complete", zap.String("command", cmd.Name()))
		}
		if err := cmd.Root().Usage(); err != nil {
			log.Warn("Failed to print usage", zap.Error(err))
		}
	})

	RootCmd.PersistentFlags().StringVar(&metis.ConfigPath, "config", "",
		"Path to the metis config file (default: /etc/metis/metis.yaml, ~/.metis/metis.yaml)")

	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return metis.BindEnvOverrides(cmd)
	}

	for _, subCmd := range []*cobra.Command{
		sync.SyncCmd,
		snapshot.SnapshotCmd,
		rollback.RollbackCmd,
		audit.AuditCmd,
	} {
		RootCmd.AddCommand(subCmd)
	}
}

// Execute initializes and runs the root command.
func Execute() {
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to flush logs: %v\n", err)
		}
	}()

	logger.L().Info("Metis CLI starting")

	RegisterCommands()

	if err := RootCmd.Execute(); err != nil {
		if metis_err.IsExpectedUserError(err) {
			logger.L().Warn("CLI completed with user error", zap.Error(err))
			os.Exit(0)
		} else {
			logger.L().Error("CLI execution error", zap.Error(err))
			os.Exit(1)
		}
	}
}
