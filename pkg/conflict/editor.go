// pkg/conflict/editor.go

package conflict

import (
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
)

// Template is the structured view handed to a manual-merge collaborator
// when automatic merge is unavailable.
type Template struct {
	ConflictID    string       `json:"conflict_id"`
	Ref           entity.Ref   `json:"ref"`
	Source        entity.State `json:"source"`
	Target        entity.State `json:"target"`
	DriftedFields []FieldDrift `json:"drifted_fields"`
}

// Editor is the manual-merge collaborator: given a conflict lacking
// auto-merge it returns a complete field set, or cancelled=true to leave
// the conflict pending.
type Editor interface {
	EditConflict(rc *metis_io.RuntimeContext, tpl Template) (fields entity.Fields, cancelled bool, err error)
}

// TemplateFor builds the editor template for one conflict.
func TemplateFor(c *Conflict) Template {
	return Template{
		ConflictID:    c.ID,
		Ref:           c.Ref,
		Source:        c.Source.Clone(),
		Target:        c.Target.Clone(),
		DriftedFields: append([]FieldDrift(nil), c.DriftedFields...),
	}
}
