// cmd/rollback/evaluate.go
package rollback

import (
	"fmt"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/engine"
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/rollback"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	evalNamespace string
	evalSystem    string
	evalLookback  int
)

// EvaluateCmd samples the configured rollback triggers once. Meant to run
// from a timer (cron, systemd); debounce state persists between runs, so
// schedule it at an interval well below the smallest configured window.
var EvaluateCmd = &cobra.Command{
	Use:   "evaluate --namespace <ns>",
	Short: "Sample automatic-rollback triggers once",
	Long: `Evaluate samples every configured trigger against the namespace's recent
sync history. A trigger fires only after its condition has held
continuously for the configured window; alert-only triggers and disabled
environments record the firing without restoring anything.`,
	RunE: metis.Wrap(runEvaluate),
}

func init() {
	EvaluateCmd.Flags().StringVar(&evalNamespace, "namespace", "", "Namespace to evaluate (required)")
	EvaluateCmd.Flags().StringVar(&evalSystem, "system", "remote", "System restored if a trigger fires")
	EvaluateCmd.Flags().IntVar(&evalLookback, "lookback", 10, "Sync passes considered per sample")
	RollbackCmd.AddCommand(EvaluateCmd)
}

func runEvaluate(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	logger := otelzap.Ctx(rc.Ctx)

	if evalNamespace == "" {
		return metis_err.NewExpectedError(fmt.Errorf("--namespace is required"))
	}

	e, err := engine.Open(rc, metis.ConfigPath)
	if err != nil {
		return err
	}
	target, err := e.Adapter(rc, evalSystem)
	if err != nil {
		return metis_err.NewExpectedError(err)
	}

	conditions := rollback.BuiltinConditions(e.Audit, evalNamespace, evalLookback)
	evaluator, err := rollback.NewEvaluator(e.Cfg.Policy.AutoRollback, conditions, e.Controller)
	if err != nil {
		return err
	}

	statePath := filepath.Join(e.Cfg.DataDir, evalNamespace, "trigger_state.json")
	if err := evaluator.LoadState(statePath); err != nil {
		return err
	}

	firings, err := evaluator.Evaluate(rc, e.SyncContext(evalNamespace, "trigger"), target)
	if err != nil {
		return err
	}
	if serr := evaluator.SaveState(statePath); serr != nil {
		return serr
	}

	if len(firings) == 0 {
		fmt.Println("No triggers fired.")
		return nil
	}
	for _, f := range firings {
		logger.Warn("Trigger fired",
			zap.String("trigger", f.Trigger),
			zap.Float64("value", f.Value),
			zap.Bool("rolled_back", f.RolledBack))
		if f.RolledBack && f.Result != nil {
			fmt.Printf("🔥 %s fired (value %.2f): rolled back to %s\n", f.Trigger, f.Value, f.Result.SnapshotID)
		} else {
			fmt.Printf("🔥 %s fired (value %.2f): alert only\n", f.Trigger, f.Value)
		}
	}
	return nil
}
