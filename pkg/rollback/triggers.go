// pkg/rollback/triggers.go

package rollback

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ConditionFn samples one metric value for trigger evaluation. The
// metrics backend is a collaborator; the engine only sees the sample.
type ConditionFn func(rc *metis_io.RuntimeContext) (float64, error)

// trigger is one policy trigger plus its debounce state.
type trigger struct {
	cfg           config.TriggerConfig
	condition     ConditionFn
	breachedSince time.Time
}

// Firing reports one trigger that fired during an evaluation.
type Firing struct {
	Trigger string  `json:"trigger"`
	Value   float64 `json:"value"`
	// RolledBack is false for alert-only triggers and when automatic
	// rollback is disabled for the environment.
	RolledBack bool    `json:"rolled_back"`
	Result     *Result `json:"result,omitempty"`
}

// Evaluator samples trigger conditions on each invocation. A trigger
// fires only when its condition holds continuously for the configured
// window; transient blips never cause a rollback storm.
type Evaluator struct {
	policy     config.AutoRollbackConfig
	triggers   []*trigger
	controller *Controller
	now        func() time.Time
}

// NewEvaluator binds the policy's triggers to their condition samplers.
// Triggers naming an unknown condition are rejected up front.
func NewEvaluator(policy config.AutoRollbackConfig, conditions map[string]ConditionFn, controller *Controller) (*Evaluator, error) {
	e := &Evaluator{policy: policy, controller: controller, now: time.Now}
	for _, tc := range policy.Triggers {
		fn, ok := conditions[tc.Condition]
		if !ok {
			return nil, cerr.Newf("trigger %s references unknown condition %s", tc.Name, tc.Condition)
		}
		e.triggers = append(e.triggers, &trigger{cfg: tc, condition: fn})
	}
	return e, nil
}

// Evaluate samples every trigger once. When a rollback trigger fires and
// automatic rollback is enabled for this environment, the most recent
// pre-change snapshot is restored and the firing trigger is recorded in
// the audit entry's operation metadata.
func (e *Evaluator) Evaluate(rc *metis_io.RuntimeContext, sc config.SyncContext, target Applier) ([]Firing, error) {
	logger := otelzap.Ctx(rc.Ctx)
	now := e.now()

	var firings []Firing
	for _, t := range e.triggers {
		value, err := t.condition(rc)
		if err != nil {
			logger.Warn("Trigger condition sample failed",
				zap.String("trigger", t.cfg.Name),
				zap.Error(err))
			continue
		}

		if value < t.cfg.Threshold {
			t.breachedSince = time.Time{}
			continue
		}

		if t.breachedSince.IsZero() {
			t.breachedSince = now
		}
		held := now.Sub(t.breachedSince)
		logger.Debug("Trigger condition breached",
			zap.String("trigger", t.cfg.Name),
			zap.Float64("value", value),
			zap.Float64("threshold", t.cfg.Threshold),
			zap.Duration("held", held),
			zap.Duration("window", t.cfg.Window))

		if held < t.cfg.Window {
			continue
		}
		t.breachedSince = time.Time{}

		firing := Firing{Trigger: t.cfg.Name, Value: value}

		if t.cfg.Action != "rollback" || !e.policy.Enabled {
			// Alert-only, or automatic rollback disabled for this
			// environment: record and move on.
			if _, aerr := e.controller.Audit.Append(rc, sc.Namespace, audit.Record{
				Actor:     sc.Actor,
				Operation: "trigger.alert",
				Detail: audit.Detail{
					Trigger: t.cfg.Name,
					Reason:  "condition held for configured window",
				},
			}); aerr != nil {
				return firings, aerr
			}
			firings = append(firings, firing)
			continue
		}

		snap, err := e.controller.Snapshots.Latest(sc.Namespace, snapshot.ListFilter{LabelPrefix: "pre-sync"})
		if err != nil {
			return firings, err
		}
		if snap == nil {
			logger.Warn("Trigger fired but no pre-change snapshot exists",
				zap.String("trigger", t.cfg.Name))
			firings = append(firings, firing)
			continue
		}

		result, err := e.controller.rollbackTo(rc, sc, snap.ID, target, nil, t.cfg.Name)
		if err != nil {
			return firings, err
		}
		firing.RolledBack = true
		firing.Result = result
		firings = append(firings, firing)
	}

	return firings, nil
}

// TriggerStatus is a read-only view of one trigger's configuration and
// debounce state.
type TriggerStatus struct {
	Name          string        `json:"name"`
	Condition     string        `json:"condition"`
	Threshold     float64       `json:"threshold"`
	Window        time.Duration `json:"window"`
	Action        string        `json:"action"`
	BreachedSince time.Time     `json:"breached_since,omitempty"`
	Held          time.Duration `json:"held,omitempty"`
}

// Status reports every trigger's current debounce state without sampling
// conditions or firing anything.
func (e *Evaluator) Status() []TriggerStatus {
	now := e.now()
	out := make([]TriggerStatus, 0, len(e.triggers))
	for _, t := range e.triggers {
		ts := TriggerStatus{
			Name:      t.cfg.Name,
			Condition: t.cfg.Condition,
			Threshold: t.cfg.Threshold,
			Window:    t.cfg.Window,
			Action:    t.cfg.Action,
		}
		if !t.breachedSince.IsZero() {
			ts.BreachedSince = t.breachedSince
			ts.Held = now.Sub(t.breachedSince)
		}
		out = append(out, ts)
	}
	return out
}

// LoadState restores per-trigger debounce timestamps from a state file,
// so one-shot invocations (cron, systemd timers) can accumulate a breach
// window across runs. A missing file is a clean slate.
func (e *Evaluator) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cerr.Wrap(err, "failed to read trigger state")
	}
	state := make(map[string]time.Time)
	if err := json.Unmarshal(data, &state); err != nil {
		return cerr.Wrap(err, "failed to decode trigger state")
	}
	for _, t := range e.triggers {
		if since, ok := state[t.cfg.Name]; ok {
			t.breachedSince = since
		}
	}
	return nil
}

// SaveState writes the per-trigger debounce timestamps for the next
// one-shot invocation.
func (e *Evaluator) SaveState(path string) error {
	state := make(map[string]time.Time, len(e.triggers))
	for _, t := range e.triggers {
		if !t.breachedSince.IsZero() {
			state[t.cfg.Name] = t.breachedSince
		}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return cerr.Wrap(err, "failed to encode trigger state")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return cerr.Wrap(err, "failed to create trigger state directory")
	}
	return os.WriteFile(path, data, 0600)
}
