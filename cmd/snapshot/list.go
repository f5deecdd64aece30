// cmd/snapshot/list.go
package snapshot

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/engine"
	metis "github.com/CodeMonkeyCybersecurity/metis/pkg/metis_cli"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	"github.com/spf13/cobra"
)

var (
	listNamespace string
	listLabel     string
	listSince     string
)

// ListCmd prints snapshot metadata, newest first.
var ListCmd = &cobra.Command{
	Use:   "list --namespace <ns>",
	Short: "List snapshots of a namespace, newest first",
	RunE:  metis.Wrap(runList),
}

func init() {
	ListCmd.Flags().StringVar(&listNamespace, "namespace", "", "Namespace to list (required)")
	ListCmd.Flags().StringVar(&listLabel, "label", "", "Only snapshots with this exact label")
	ListCmd.Flags().StringVar(&listSince, "since", "", "Only snapshots created after this RFC3339 time")
	SnapshotCmd.AddCommand(ListCmd)
}

func runList(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	if listNamespace == "" {
		return metis_err.NewExpectedError(fmt.Errorf("--namespace is required"))
	}

	filter := snapshot.ListFilter{Label: listLabel}
	if listSince != "" {
		since, err := time.Parse(time.RFC3339, listSince)
		if err != nil {
			return metis_err.NewExpectedError(fmt.Errorf("invalid --since value: %w", err))
		}
		filter.Since = since
	}

	e, err := engine.Open(rc, metis.ConfigPath)
	if err != nil {
		return err
	}
	metas, err := e.Snapshots.List(listNamespace, filter)
	if err != nil {
		return err
	}

	if len(metas) == 0 {
		fmt.Printf("No snapshots in namespace %s\n", listNamespace)
		return nil
	}
	for _, m := range metas {
		fmt.Printf("%s  %s  %3d entities  %s\n",
			m.ID, m.CreatedAt.Format(time.RFC3339), m.Entities, m.Label)
	}
	return nil
}
