// cmd/snapshot/snapshot.go

package snapshot

import (
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var SnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create, list, delete, and prune snapshots",
	Long:  "Manage the immutable point-in-time captures used for rollback and auditing.",

	RunE: metis.Wrap(func(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		otelzap.Ctx(rc.Ctx).Info("No subcommand provided for <command>.", zap.String("command", cmd.Use))
		_ = cmd.Help()
		return nil
	}),
}
