// cmd/sync/pull.go
package sync

import (
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/sync"
	"github.com/spf13/cobra"
)

// PullCmd syncs the target system's state back onto the source system.
// The roles are swapped before the pass runs; everything else matches push.
var PullCmd = &cobra.Command{
	Use:   "pull --namespace <ns>",
	Short: "Pull target system state back onto the source system",
	Long: `Pull runs one synchronization pass with the roles reversed: the configured
target system is the side being propagated.

Examples:
  metis sync pull --namespace prod
  metis sync pull --namespace prod --dry-run`,
	RunE: metis.Wrap(runPull),
}

func runPull(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	return runSync(rc, sync.DirectionPull)
}
