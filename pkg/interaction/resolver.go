// pkg/interaction/resolver.go

package interaction

import (
	"bufio"
	"fmt"
	"os"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// BatchResolver resolves every pending conflict with one action. Used by
// the non-interactive CLI path (--resolve flag, scripts, CI).
type BatchResolver struct {
	Action     conflict.Action
	ResolvedBy string
}

func (r *BatchResolver) Resolve(rc *metis_io.RuntimeContext, eng *conflict.Engine) error {
	_, err := eng.ResolveBatch(rc, conflict.Filter{PendingOnly: true}, r.Action, r.ResolvedBy)
	return err
}

// PromptResolver walks the pending conflict set on the terminal, showing
// field-level drift and asking for a decision per conflict. Unanswered
// conflicts stay pending: they are not applied, they show up in the pass
// preview, and they stay out of the baseline.
type PromptResolver struct {
	Actor string
	// In overrides stdin in tests.
	In *bufio.Reader
	// Editor handles the [e]dit choice. Defaults to a FileEditor on
	// $EDITOR.
	Editor conflict.Editor
}

func (r *PromptResolver) Resolve(rc *metis_io.RuntimeContext, eng *conflict.Engine) error {
	logger := otelzap.Ctx(rc.Ctx)

	in := r.In
	if in == nil {
		in = bufio.NewReader(os.Stdin)
	}
	editor := r.Editor
	if editor == nil {
		editor = &FileEditor{}
	}

	pending := eng.Pending()
	if len(pending) == 0 {
		return nil
	}
	fmt.Printf("⚠️  %d conflict(s) need resolution\n", len(pending))

	var batch *conflict.Action
	for i, c := range pending {
		if batch != nil {
			if _, err := eng.ResolveOne(rc, c.ID, *batch, nil, r.Actor); err != nil {
				fmt.Printf("   could not apply %s to %s: %v\n", *batch, c.Ref.String(), err)
			}
			continue
		}

		printConflict(i+1, len(pending), c)

		for {
			choice, err := ReadLine(in, "Resolve [s]ource / [t]arget / [m]erge / [e]dit / s[k]ip / [S]ource-all / [T]arget-all / [q]uit")
			if err != nil {
				return err
			}

			if choice == "e" {
				fields, cancelled, err := editor.EditConflict(rc, conflict.TemplateFor(c))
				if err != nil {
					fmt.Printf("   ❌ %v\n", err)
					continue
				}
				if cancelled {
					fmt.Println("Edit cancelled, conflict stays pending.")
					continue
				}
				if _, err := eng.ResolveOne(rc, c.ID, conflict.ActionMerge, fields, r.Actor); err != nil {
					fmt.Printf("   ❌ %v\n", err)
					continue
				}
				break
			}

			action, all, ok := parseChoice(choice)
			if !ok {
				if choice == "q" {
					logger.Info("Interactive resolution aborted",
						zap.Int("resolved", i),
						zap.Int("remaining", len(pending)-i))
					return nil
				}
				fmt.Println("Unrecognized choice, try again.")
				continue
			}

			if _, err := eng.ResolveOne(rc, c.ID, action, nil, r.Actor); err != nil {
				fmt.Printf("   ❌ %v\n", err)
				continue
			}
			if all {
				batch = &action
			}
			break
		}
	}
	return nil
}

func parseChoice(choice string) (action conflict.Action, all, ok bool) {
	switch choice {
	case "s":
		return conflict.ActionKeepSource, false, true
	case "t":
		return conflict.ActionKeepTarget, false, true
	case "m":
		return conflict.ActionMerge, false, true
	case "k":
		return conflict.ActionSkip, false, true
	case "S":
		return conflict.ActionKeepSource, true, true
	case "T":
		return conflict.ActionKeepTarget, true, true
	default:
		return "", false, false
	}
}

func printConflict(n, total int, c *conflict.Conflict) {
	fmt.Printf("\n[%d/%d] %s\n", n, total, c.Ref.String())
	for _, fd := range c.DriftedFields {
		if fd.HasBaseline {
			fmt.Printf("  %s: source=%v  target=%v  (baseline=%v)\n",
				fd.Field, fd.SourceValue, fd.TargetValue, fd.BaselineValue)
			continue
		}
		fmt.Printf("  %s: source=%v  target=%v\n", fd.Field, fd.SourceValue, fd.TargetValue)
	}
}
