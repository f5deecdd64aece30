// pkg/audit/verify.go

package audit

import (
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// VerifyResult reports chain verification for one namespace.
type VerifyResult struct {
	Namespace string `json:"namespace"`
	Entries   int    `json:"entries"`
	Valid     bool   `json:"valid"`
	// BrokenSeq is the sequence number of the first broken link, 0 when
	// the chain is intact.
	BrokenSeq int    `json:"broken_seq,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Verify recomputes the hash chain from genesis up to toSeq (0 means the
// whole partition) and flags the first broken link. A violation is
// surfaced, never auto-repaired.
func (l *Log) Verify(rc *metis_io.RuntimeContext, namespace string, toSeq int) (*VerifyResult, error) {
	logger := otelzap.Ctx(rc.Ctx)

	entries, err := l.readAll(namespace)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Namespace: namespace, Valid: true}
	prevHash := ""
	for _, e := range entries {
		if toSeq > 0 && e.Seq > toSeq {
			break
		}
		result.Entries++

		reason := ""
		switch {
		case e.PrevHash != prevHash:
			reason = "prev_hash does not match preceding entry"
		default:
			want, herr := chainHash(e)
			if herr != nil {
				return nil, herr
			}
			if e.Hash != want {
				reason = "entry hash does not match recomputed value"
			}
		}
		if reason != "" {
			result.Valid = false
			result.BrokenSeq = e.Seq
			result.Reason = reason
			logger.Warn("Audit chain integrity violation",
				zap.String("namespace", namespace),
				zap.Int("broken_seq", e.Seq),
				zap.String("reason", reason))
			return result, nil
		}
		prevHash = e.Hash
	}

	logger.Info("Audit chain verified",
		zap.String("namespace", namespace),
		zap.Int("entries", result.Entries),
		zap.Bool("valid", result.Valid))
	return result, nil
}

// VerifyErr wraps Verify for callers that want a typed error instead of
// a result struct.
func (l *Log) VerifyErr(rc *metis_io.RuntimeContext, namespace string) error {
	result, err := l.Verify(rc, namespace, 0)
	if err != nil {
		return err
	}
	if !result.Valid {
		return metis_err.NewChainIntegrityViolation(namespace, result.BrokenSeq, result.Reason)
	}
	return nil
}
