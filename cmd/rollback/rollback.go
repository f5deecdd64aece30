// cmd/rollback/rollback.go

package rollback

import (
	"fmt"
	"os"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/engine"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/interaction"
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	rollbackNamespace  string
	rollbackSystem     string
	rollbackActor      string
	rollbackComponents []string
	rollbackYes        bool
)

// RollbackCmd restores a system to the state recorded in a snapshot.
var RollbackCmd = &cobra.Command{
	Use:   "rollback --namespace <ns> <snapshot-id>",
	Short: "Restore a system to the state recorded in a snapshot",
	Long: `Rollback computes the difference between the system's current state and
the snapshot, then writes only what differs. Entities that already match
the snapshot are untouched. The restore is recorded in the audit log with
a reference to the snapshot.

Examples:
  metis rollback --namespace prod 2f1c...
  metis rollback --namespace prod --components service,route 2f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: metis.Wrap(runRollback),
}

func init() {
	RollbackCmd.Flags().StringVar(&rollbackNamespace, "namespace", "", "Namespace of the snapshot (required)")
	RollbackCmd.Flags().StringVar(&rollbackSystem, "system", "remote", "Configured system to restore")
	RollbackCmd.Flags().StringVar(&rollbackActor, "actor", "", "Actor recorded in the audit log (default: $USER)")
	RollbackCmd.Flags().StringSliceVar(&rollbackComponents, "components", nil,
		"Entity types to restore (default: everything the snapshot covers)")
	RollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false, "Do not ask for confirmation")
}

func runRollback(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	logger := otelzap.Ctx(rc.Ctx)

	if rollbackNamespace == "" {
		return metis_err.NewExpectedError(fmt.Errorf("--namespace is required"))
	}
	snapshotID := args[0]

	e, err := engine.Open(rc, metis.ConfigPath)
	if err != nil {
		return err
	}
	target, err := e.Adapter(rc, rollbackSystem)
	if err != nil {
		return metis_err.NewExpectedError(err)
	}

	snap, err := e.Snapshots.Get(rollbackNamespace, snapshotID)
	if err != nil {
		return metis_err.NewExpectedError(err)
	}

	if !rollbackYes {
		prompt := fmt.Sprintf("Restore %s to snapshot %s from %s (%d entities)",
			rollbackSystem, snap.ID, snap.CreatedAt.Format(time.RFC3339), len(snap.EntityStates))
		if !interaction.PromptYesNo(prompt, false) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	actor := rollbackActor
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "operator"
	}

	result, err := e.Controller.RollbackTo(rc, e.SyncContext(rollbackNamespace, actor), snapshotID, target, rollbackComponents)
	if err != nil {
		return err
	}

	logger.Info("Rollback completed",
		zap.String("snapshot_id", result.SnapshotID),
		zap.Int("restored", len(result.Restored)),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", len(result.Failures)))

	fmt.Printf("Rollback to %s: restored %d, unchanged %d, failed %d\n",
		result.SnapshotID, len(result.Restored), result.Unchanged, len(result.Failures))
	for _, f := range result.Failures {
		fmt.Printf("  ❌ %s: %s\n", f.Ref.String(), f.Reason)
	}
	if len(result.Failures) > 0 {
		return metis_err.NewExpectedError(
			fmt.Errorf("rollback completed with %d failure(s)", len(result.Failures)))
	}
	return nil
}
