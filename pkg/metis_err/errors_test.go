// pkg/metis_err/errors_test.go

package metis_err

import (
	"fmt"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKind_ThroughWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewFetchFailure("remote", cause)

	assert.True(t, IsKind(err, KindFetchFailure))
	assert.False(t, IsKind(err, KindApplyFailure))

	// Classification survives further wrapping up the call stack.
	wrapped := cerr.Wrap(err, "sync pass aborted")
	assert.True(t, IsKind(wrapped, KindFetchFailure))

	assert.False(t, IsKind(nil, KindFetchFailure))
	assert.False(t, IsKind(fmt.Errorf("plain"), KindFetchFailure))
}

func TestEngineError_MessageCarriesIdentifiers(t *testing.T) {
	err := NewApplyFailure("prod/service/web", fmt.Errorf("permission denied"))
	assert.Contains(t, err.Error(), "apply_failure")
	assert.Contains(t, err.Error(), "prod/service/web")
	assert.Contains(t, err.Error(), "permission denied")

	err = NewInvalidResolution("c-42", "merge leaves fields unresolved")
	assert.Contains(t, err.Error(), "invalid_resolution")
	assert.Contains(t, err.Error(), "c-42")
}

func TestEngineError_UnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewAuditWriteFailure("prod/service/web", cause)

	var e *EngineError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, cause, e.Unwrap())
}

func TestNewChainIntegrityViolation(t *testing.T) {
	err := NewChainIntegrityViolation("prod", 7, "prev_hash mismatch")
	assert.True(t, IsKind(err, KindChainIntegrityViolation))
	assert.Contains(t, err.Error(), "entry 7")
}
