// cmd/snapshot/delete.go
package snapshot

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/engine"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/interaction"
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/spf13/cobra"
)

var (
	deleteNamespace string
	deleteYes       bool
	pruneFlag       bool
)

// DeleteCmd removes one snapshot, or prunes everything past retention.
var DeleteCmd = &cobra.Command{
	Use:   "delete --namespace <ns> <snapshot-id>",
	Short: "Delete a snapshot (refused while it is an active rollback target)",
	Long: `Delete removes one whole snapshot. Deletion is refused while any recent
audit entry still references the snapshot as a rollback target.

With --prune, every snapshot older than the retention window is removed
instead; in-use rollback targets are kept and reported.`,
	RunE: metis.Wrap(runDelete),
}

func init() {
	DeleteCmd.Flags().StringVar(&deleteNamespace, "namespace", "", "Namespace of the snapshot (required)")
	DeleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "Do not ask for confirmation")
	DeleteCmd.Flags().BoolVar(&pruneFlag, "prune", false, "Delete all snapshots past the retention window")
	SnapshotCmd.AddCommand(DeleteCmd)
}

func runDelete(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	if deleteNamespace == "" {
		return metis_err.NewExpectedError(fmt.Errorf("--namespace is required"))
	}

	e, err := engine.Open(rc, metis.ConfigPath)
	if err != nil {
		return err
	}

	if pruneFlag {
		deleted, kept, err := e.Snapshots.Prune(rc, deleteNamespace)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d snapshot(s), kept %d in-use rollback target(s)\n", deleted, kept)
		return nil
	}

	if len(args) != 1 {
		return metis_err.NewExpectedError(fmt.Errorf("expected exactly one snapshot id"))
	}
	id := args[0]

	if !deleteYes && !interaction.PromptYesNo(fmt.Sprintf("Delete snapshot %s", id), false) {
		fmt.Println("Aborted.")
		return nil
	}

	if err := e.Snapshots.Delete(rc, deleteNamespace, id); err != nil {
		return err
	}
	fmt.Printf("✅ Snapshot %s deleted\n", id)
	return nil
}
