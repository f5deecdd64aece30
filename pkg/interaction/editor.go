// pkg/interaction/editor.go

package interaction

import (
	"encoding/json"
	"os"
	"os/exec"

	cerr "github.com/cockroachdb/errors"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
)

// editDoc is the file handed to the operator's editor. The merged block
// is prefilled with the target's fields; deleting it (or setting it to
// null) cancels the edit and leaves the conflict pending.
type editDoc struct {
	ConflictID    string                `json:"conflict_id"`
	Ref           entity.Ref            `json:"ref"`
	Source        entity.Fields         `json:"source"`
	Target        entity.Fields         `json:"target"`
	DriftedFields []conflict.FieldDrift `json:"drifted_fields"`
	Merged        entity.Fields         `json:"merged"`
}

// FileEditor implements conflict.Editor by writing the conflict template
// to a temp file and launching the operator's editor on it.
type FileEditor struct {
	// Command overrides $EDITOR. Defaults to vi when both are empty.
	Command string
}

func (e *FileEditor) EditConflict(rc *metis_io.RuntimeContext, tpl conflict.Template) (entity.Fields, bool, error) {
	editor := e.Command
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	doc := editDoc{
		ConflictID:    tpl.ConflictID,
		Ref:           tpl.Ref,
		Source:        tpl.Source.Fields,
		Target:        tpl.Target.Fields,
		DriftedFields: tpl.DriftedFields,
		Merged:        tpl.Target.Fields.Clone(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, false, cerr.Wrap(err, "encode merge template")
	}

	f, err := os.CreateTemp("", "metis-merge-*.json")
	if err != nil {
		return nil, false, cerr.Wrap(err, "create merge template file")
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, false, cerr.Wrap(err, "write merge template")
	}
	if err := f.Close(); err != nil {
		return nil, false, cerr.Wrap(err, "close merge template")
	}

	cmd := exec.CommandContext(rc.Ctx, editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, false, cerr.Wrapf(err, "editor %s failed", editor)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return nil, false, cerr.Wrap(err, "read edited template")
	}
	var out editDoc
	if err := json.Unmarshal(edited, &out); err != nil {
		return nil, false, cerr.Wrapf(err, "edited template for %s is not valid JSON", tpl.Ref.String())
	}
	if out.Merged == nil {
		return nil, true, nil
	}
	return out.Merged, false, nil
}

var _ conflict.Editor = (*FileEditor)(nil)
