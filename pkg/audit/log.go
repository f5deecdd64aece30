// Package audit is the append-only, hash-chained record of every
// resolution and sync operation, one JSONL partition per namespace.
//
// Each entry's hash covers the previous entry's hash, so any retroactive
// edit to history breaks the chain from that point on and is detectable
// by Verify. Entries are all structs (no map fields) so json.Marshal
// field order is deterministic and hashes are reproducible.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Detail is the flattened operation metadata recorded with each entry.
type Detail struct {
	EntityRef  string `json:"entity_ref,omitempty"`
	ConflictID string `json:"conflict_id,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Trigger    string `json:"trigger,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit log.
type Entry struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace"`
	Actor     string    `json:"actor"`
	Operation string    `json:"operation"`
	BeforeRef string    `json:"before_ref,omitempty"`
	AfterRef  string    `json:"after_ref,omitempty"`
	Detail    Detail    `json:"detail,omitempty"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Record is the caller-supplied portion of an entry.
type Record struct {
	Actor     string
	Operation string
	BeforeRef string
	AfterRef  string
	Detail    Detail
}

// Log is the per-namespace audit log. Append is the one serialized
// critical section system-wide; it is narrow and fast and stays off the
// entity-apply hot path until each apply completes.
type Log struct {
	baseDir string

	mu    sync.Mutex
	tails map[string]tail
}

type tail struct {
	seq  int
	hash string
}

// NewLog opens an audit log rooted at baseDir.
func NewLog(baseDir string) *Log {
	return &Log{baseDir: baseDir, tails: make(map[string]tail)}
}

func (l *Log) path(namespace string) string {
	return filepath.Join(l.baseDir, namespace, "audit.jsonl")
}

// Append computes the hash chain and durably writes one entry. The write
// is fsynced before Append returns: a state change whose audit write
// failed must not be considered committed.
func (l *Log) Append(rc *metis_io.RuntimeContext, namespace string, rec Record) (*Entry, error) {
	logger := otelzap.Ctx(rc.Ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.tailLocked(namespace)
	if err != nil {
		return nil, metis_err.NewAuditWriteFailure(rec.Detail.EntityRef, err)
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Seq:       t.seq + 1,
		Timestamp: time.Now().UTC(),
		Namespace: namespace,
		Actor:     rec.Actor,
		Operation: rec.Operation,
		BeforeRef: rec.BeforeRef,
		AfterRef:  rec.AfterRef,
		Detail:    rec.Detail,
		PrevHash:  t.hash,
	}
	entry.Hash, err = chainHash(entry)
	if err != nil {
		return nil, metis_err.NewAuditWriteFailure(rec.Detail.EntityRef, err)
	}

	if err := l.writeLocked(namespace, entry); err != nil {
		return nil, metis_err.NewAuditWriteFailure(rec.Detail.EntityRef, err)
	}
	l.tails[namespace] = tail{seq: entry.Seq, hash: entry.Hash}

	logger.Debug("Audit entry appended",
		zap.String("namespace", namespace),
		zap.String("operation", rec.Operation),
		zap.Int("seq", entry.Seq))

	return &entry, nil
}

// tailLocked returns the chain tail, reading the partition once and
// caching it afterwards. Caller holds l.mu.
func (l *Log) tailLocked(namespace string) (tail, error) {
	if t, ok := l.tails[namespace]; ok {
		return t, nil
	}
	entries, err := l.readAll(namespace)
	if err != nil {
		return tail{}, err
	}
	t := tail{}
	if n := len(entries); n > 0 {
		t = tail{seq: entries[n-1].Seq, hash: entries[n-1].Hash}
	}
	l.tails[namespace] = t
	return t, nil
}

func (l *Log) writeLocked(namespace string, entry Entry) error {
	dir := filepath.Join(l.baseDir, namespace)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return cerr.Wrap(err, "failed to create audit directory")
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return cerr.Wrap(err, "failed to encode audit entry")
	}

	f, err := os.OpenFile(l.path(namespace), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return cerr.Wrap(err, "failed to open audit log")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return cerr.Wrap(err, "failed to write audit entry")
	}
	return f.Sync()
}

// readAll loads every entry of a namespace partition in file order.
func (l *Log) readAll(namespace string) ([]Entry, error) {
	f, err := os.Open(l.path(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerr.Wrap(err, "failed to open audit log")
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, cerr.Wrap(err, "corrupt audit entry")
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, cerr.Wrap(err, "failed to read audit log")
	}
	return entries, nil
}

// chainHash is sha256(prev_hash || serialize(entry_without_hash)).
func chainHash(entry Entry) (string, error) {
	entry.Hash = ""
	payload, err := json.Marshal(entry)
	if err != nil {
		return "", cerr.Wrap(err, "failed to serialize entry for hashing")
	}
	h := sha256.New()
	h.Write([]byte(entry.PrevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
