// cmd/rollback/status.go
package rollback

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/engine"
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/rollback"
	"github.com/spf13/cobra"
)

var statusNamespace string

// StatusCmd shows the configured triggers and their debounce state.
var StatusCmd = &cobra.Command{
	Use:   "status --namespace <ns>",
	Short: "Show automatic-rollback triggers and their debounce state",
	Long: `Status lists every configured trigger with its condition, threshold and
window, and shows how long any breached condition has been held. Nothing is
sampled or fired; the debounce state comes from the last evaluate run.`,
	RunE: metis.Wrap(runStatus),
}

func init() {
	StatusCmd.Flags().StringVar(&statusNamespace, "namespace", "", "Namespace to inspect (required)")
	RollbackCmd.AddCommand(StatusCmd)
}

func runStatus(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	if statusNamespace == "" {
		return metis_err.NewExpectedError(fmt.Errorf("--namespace is required"))
	}

	e, err := engine.Open(rc, metis.ConfigPath)
	if err != nil {
		return err
	}

	conditions := rollback.BuiltinConditions(e.Audit, statusNamespace, 10)
	evaluator, err := rollback.NewEvaluator(e.Cfg.Policy.AutoRollback, conditions, e.Controller)
	if err != nil {
		return err
	}
	statePath := filepath.Join(e.Cfg.DataDir, statusNamespace, "trigger_state.json")
	if err := evaluator.LoadState(statePath); err != nil {
		return err
	}

	if e.Cfg.Policy.AutoRollback.Enabled {
		fmt.Println("Automatic rollback: enabled")
	} else {
		fmt.Println("Automatic rollback: disabled (triggers alert only)")
	}

	triggers := evaluator.Status()
	if len(triggers) == 0 {
		fmt.Println("No triggers configured.")
		return nil
	}
	for _, ts := range triggers {
		state := "quiet"
		if !ts.BreachedSince.IsZero() {
			state = fmt.Sprintf("breached for %s of %s", ts.Held.Round(time.Second), ts.Window)
		}
		fmt.Printf("  %-24s %s >= %.2f for %s → %s  [%s]\n",
			ts.Name, ts.Condition, ts.Threshold, ts.Window, ts.Action, state)
	}

	for _, op := range []string{"trigger.alert", "rollback.auto"} {
		entries, err := e.Audit.Query(statusNamespace, audit.QueryFilter{Operation: op})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		last := entries[len(entries)-1]
		line := fmt.Sprintf("Last %s: %s by trigger %s", op, last.Timestamp.Format(time.RFC3339), last.Detail.Trigger)
		if last.Detail.SnapshotID != "" {
			line += " (snapshot " + last.Detail.SnapshotID + ")"
		}
		fmt.Println(line)
	}
	return nil
}
