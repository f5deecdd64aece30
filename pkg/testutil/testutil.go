// Package testutil holds the helpers shared by the engine's test suites.
package testutil

import (
	"context"
	"testing"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
)

// RuntimeContext builds a RuntimeContext suitable for tests. Telemetry is
// the no-op default and logging goes to the global (nop) logger.
func RuntimeContext(t *testing.T) *metis_io.RuntimeContext {
	t.Helper()
	return metis_io.NewContext(context.Background(), "test")
}

// State builds an entity state for the default test namespace.
func State(typ, name string, fields entity.Fields) entity.State {
	return entity.State{
		Ref:    entity.Ref{Namespace: "test", Type: typ, Name: name},
		Fields: fields,
	}
}

// Ref builds a ref in the default test namespace.
func Ref(typ, name string) entity.Ref {
	return entity.Ref{Namespace: "test", Type: typ, Name: name}
}
