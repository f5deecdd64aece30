// cmd/sync/push.go
package sync

import (
	"fmt"
	"os"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/engine"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/interaction"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/merge"
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/sync"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	syncNamespace     string
	syncSource        string
	syncTarget        string
	syncActor         string
	syncStrategy      string
	syncResolve       string
	syncSkipConflicts bool
	syncDryRun        bool
	syncYes           bool
)

// PushCmd syncs the source system's state onto the target system.
var PushCmd = &cobra.Command{
	Use:   "push --namespace <ns>",
	Short: "Push source system state onto the target system",
	Long: `Push runs one synchronization pass with the configured source system as
the side being propagated. Drift is detected against the last agreed
baseline, conflicts are resolved interactively (or per --resolve), and a
pre-change snapshot is taken before anything is written.

Examples:
  # Interactive push of the prod namespace
  metis sync push --namespace prod

  # Preview without writing anything
  metis sync push --namespace prod --dry-run

  # Non-interactive: keep the source side of every conflict
  metis sync push --namespace prod --yes --resolve keep-source`,
	RunE: metis.Wrap(runPush),
}

func init() {
	for _, c := range []*cobra.Command{PushCmd, PullCmd} {
		c.Flags().StringVar(&syncNamespace, "namespace", "", "Namespace to synchronize (required)")
		c.Flags().StringVar(&syncSource, "source", "local", "Configured system playing the source role")
		c.Flags().StringVar(&syncTarget, "target", "remote", "Configured system playing the target role")
		c.Flags().StringVar(&syncActor, "actor", "", "Actor recorded in the audit log (default: $USER)")
		c.Flags().StringVar(&syncStrategy, "strategy", "", "Merge strategy override (default from config)")
		c.Flags().StringVar(&syncResolve, "resolve", "",
			"Non-interactive resolution for every conflict: keep-source, keep-target, merge, or skip")
		c.Flags().BoolVar(&syncSkipConflicts, "skip-conflicts", false,
			"Sync non-conflicting entities only; conflicts are recorded and skipped")
		c.Flags().BoolVar(&syncDryRun, "dry-run", false, "Detect and preview without writing anything")
		c.Flags().BoolVar(&syncYes, "yes", false,
			"Run non-interactively; without --resolve, conflicts stay pending and unsynced")
		SyncCmd.AddCommand(c)
	}
}

func runPush(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	return runSync(rc, sync.DirectionPush)
}

func runSync(rc *metis_io.RuntimeContext, direction sync.Direction) error {
	logger := otelzap.Ctx(rc.Ctx)

	// ASSESS - Validate inputs and assemble the engine
	if syncNamespace == "" {
		return metis_err.NewExpectedError(fmt.Errorf("--namespace is required"))
	}

	e, err := engine.Open(rc, metis.ConfigPath)
	if err != nil {
		return err
	}

	if syncStrategy != "" {
		strategy, err := merge.Get(syncStrategy)
		if err != nil {
			return metis_err.NewExpectedError(err)
		}
		e.Orchestrator.Strategy = strategy
	}

	source, err := e.Adapter(rc, syncSource)
	if err != nil {
		return metis_err.NewExpectedError(err)
	}
	target, err := e.Adapter(rc, syncTarget)
	if err != nil {
		return metis_err.NewExpectedError(err)
	}
	if direction == sync.DirectionPull {
		source, target = target, source
	}

	actor := syncActor
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "operator"
	}

	sc := e.SyncContext(syncNamespace, actor)
	if syncSkipConflicts {
		sc.Policy.SkipConflicts = true
	}

	resolver, err := buildResolver(actor)
	if err != nil {
		return err
	}

	cfg := &sync.SyncConfig{
		Context:  sc,
		Source:   source,
		Target:   target,
		Resolver: resolver,
		Schemas:  e.Schemas,
		DryRun:   syncDryRun,
	}

	// INTERVENE - Run the pass
	logger.Info("Starting sync pass",
		zap.String("direction", string(direction)),
		zap.String("namespace", syncNamespace),
		zap.String("source", source.Name()),
		zap.String("target", target.Name()),
		zap.Bool("dry_run", syncDryRun))

	var result *sync.Result
	if direction == sync.DirectionPull {
		result, err = e.Orchestrator.Pull(rc, cfg)
	} else {
		result, err = e.Orchestrator.Push(rc, cfg)
	}
	if err != nil {
		return err
	}

	// EVALUATE - Report the outcome
	printResult(result)
	if !result.Success() {
		return metis_err.NewExpectedError(
			fmt.Errorf("sync completed with %d failure(s)", len(result.Failures)))
	}
	return nil
}

// buildResolver picks the conflict resolver for the pass. Skip-conflicts
// passes never consult one.
func buildResolver(actor string) (sync.Resolver, error) {
	if syncSkipConflicts {
		return nil, nil
	}
	if syncResolve != "" {
		action := conflict.Action(syncResolve)
		switch action {
		case conflict.ActionKeepSource, conflict.ActionKeepTarget, conflict.ActionMerge, conflict.ActionSkip:
			return &interaction.BatchResolver{Action: action, ResolvedBy: actor}, nil
		default:
			return nil, metis_err.NewExpectedError(
				fmt.Errorf("unknown --resolve action %q", syncResolve))
		}
	}
	if syncYes || syncDryRun {
		// Non-interactive with no decision given: conflicts stay pending,
		// show up in the preview, and stay out of the baseline.
		return nil, nil
	}
	return &interaction.PromptResolver{Actor: actor}, nil
}

func printResult(r *sync.Result) {
	verb := "Sync"
	if r.DryRun {
		verb = "Dry-run sync"
	}
	fmt.Printf("%s %s of namespace %s completed in %s\n", verb, r.Direction, r.Namespace, r.Duration.Round(time.Millisecond))
	fmt.Printf("  synced: %d  applied: %d  skipped: %d  unchanged: %d  failed: %d\n",
		len(r.Synced), len(r.Applied), len(r.Skipped), r.Unchanged, len(r.Failures))
	if r.SnapshotID != "" {
		fmt.Printf("  pre-change snapshot: %s\n", r.SnapshotID)
	}
	for _, f := range r.Failures {
		fmt.Printf("  ❌ %s: %s\n", f.Ref.String(), f.Reason)
	}
	if r.DryRun {
		for _, entry := range r.Preview.Entries {
			fmt.Printf("  %s %s (%s)\n", entry.Status, entry.Ref.String(), entry.Action)
		}
	}
}
