// pkg/rollback/conditions.go

package rollback

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
)

// BuiltinConditions samples trigger metrics from the namespace's own
// audit history. External metrics backends can add to or replace this
// map; the evaluator does not care where samples come from.
//
//	sync-failure-rate          fraction of the last lookback sync passes
//	                           that completed with failures
//	consecutive-sync-failures  count of trailing failed sync passes
func BuiltinConditions(log *audit.Log, namespace string, lookback int) map[string]ConditionFn {
	if lookback < 1 {
		lookback = 10
	}
	return map[string]ConditionFn{
		"sync-failure-rate": func(rc *metis_io.RuntimeContext) (float64, error) {
			passes, err := recentSyncPasses(log, namespace, lookback)
			if err != nil || len(passes) == 0 {
				return 0, err
			}
			var failed int
			for _, e := range passes {
				if passFailed(e) {
					failed++
				}
			}
			return float64(failed) / float64(len(passes)), nil
		},
		"consecutive-sync-failures": func(rc *metis_io.RuntimeContext) (float64, error) {
			passes, err := recentSyncPasses(log, namespace, lookback)
			if err != nil {
				return 0, err
			}
			var run int
			for i := len(passes) - 1; i >= 0; i-- {
				if !passFailed(passes[i]) {
					break
				}
				run++
			}
			return float64(run), nil
		},
	}
}

// recentSyncPasses returns the last n pass-level sync entries, oldest
// first.
func recentSyncPasses(log *audit.Log, namespace string, n int) ([]audit.Entry, error) {
	entries, err := log.Query(namespace, audit.QueryFilter{})
	if err != nil {
		return nil, err
	}
	var passes []audit.Entry
	for _, e := range entries {
		if strings.HasPrefix(e.Operation, "sync.") && e.Operation != "sync.copy" && e.Operation != "sync.apply" {
			passes = append(passes, e)
		}
	}
	if len(passes) > n {
		passes = passes[len(passes)-n:]
	}
	return passes, nil
}

func passFailed(e audit.Entry) bool {
	return e.Detail.Reason != "completed"
}
