// cmd/sync/sync.go

package sync

import (
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a synchronization pass between configured systems",
	Long:  "Synchronize configuration entities between the configured source and target systems.",

	RunE: metis.Wrap(func(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		otelzap.Ctx(rc.Ctx).Info("No subcommand provided for <command>.", zap.String("command", cmd.Use))
		_ = cmd.Help()
		return nil
	}),
}
