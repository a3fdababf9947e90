// Package diff is the comparison engine: a pure function from two requirement
// field-sets to a categorized delta. It has no storage access; callers adapt
// snapshots or the live projection into FieldBags first.
package diff

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Tracked scalar fields, in report order.
var textFields = []string{
	FieldShortreq,
	FieldDetails,
	FieldLanguage,
	FieldExample,
	FieldMotivation,
	FieldUsecase,
	FieldNorm,
	FieldChapter,
}

// Tracked relationship-id fields, compared as sets.
var idSetFields = []string{
	FieldUsecaseIDs,
	FieldNormIDs,
}

const (
	FieldShortreq   = "shortreq"
	FieldDetails    = "details"
	FieldLanguage   = "language"
	FieldExample    = "example"
	FieldMotivation = "motivation"
	FieldUsecase    = "usecase"
	FieldNorm       = "norm"
	FieldChapter    = "chapter"
	FieldUsecaseIDs = "usecase_ids"
	FieldNormIDs    = "norm_ids"
)

// FieldBag is one requirement's tracked fields, keyed the same way whether it
// came from a snapshot or the live table. Text values keep nil and "" distinct;
// the freeze copies fields verbatim and the comparison must mirror that.
type FieldBag struct {
	Texts  map[string]*string
	IDSets map[string][]uuid.UUID
}

// FieldChange records one differing field. List-type fields are rendered as an
// order-insensitive string (sorted ids joined with ", ").
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

type ModifiedRequirement struct {
	RequirementID uuid.UUID     `json:"requirement_id"`
	Shortreq      string        `json:"shortreq"`
	Changes       []FieldChange `json:"changes"`
}

// Result is one comparison run. It is also the document frozen onto an
// alignment session at session start.
type Result struct {
	Added          []uuid.UUID           `json:"added"`
	Deleted        []uuid.UUID           `json:"deleted"`
	Modified       []ModifiedRequirement `json:"modified"`
	UnchangedCount int                   `json:"unchanged_count"`
}

func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Deleted) == 0 && len(r.Modified) == 0
}

// ChangedIDs returns the reviewable members of the changed-set: requirements
// added or modified relative to the baseline. Deleted ids have no snapshot on
// the new side and are not reviewable targets.
func (r Result) ChangedIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Added)+len(r.Modified))
	out = append(out, r.Added...)
	for _, mod := range r.Modified {
		out = append(out, mod.RequirementID)
	}
	return out
}

// Compare categorizes every requirement id across the two sets. Ids only in
// `to` are added, ids only in `from` are deleted, ids in both are modified or
// unchanged depending on field equality. Output ordering is sorted by id for
// stable display and carries no semantic weight.
func Compare(from, to map[uuid.UUID]FieldBag) Result {
	result := Result{
		Added:    []uuid.UUID{},
		Deleted:  []uuid.UUID{},
		Modified: []ModifiedRequirement{},
	}

	for _, id := range sortedIDs(to) {
		if _, ok := from[id]; !ok {
			result.Added = append(result.Added, id)
		}
	}
	for _, id := range sortedIDs(from) {
		if _, ok := to[id]; !ok {
			result.Deleted = append(result.Deleted, id)
		}
	}
	for _, id := range sortedIDs(from) {
		after, ok := to[id]
		if !ok {
			continue
		}
		changes := fieldChanges(from[id], after)
		if len(changes) == 0 {
			result.UnchangedCount++
			continue
		}
		result.Modified = append(result.Modified, ModifiedRequirement{
			RequirementID: id,
			Shortreq:      textOrEmpty(after.Texts[FieldShortreq]),
			Changes:       changes,
		})
	}
	return result
}

func fieldChanges(before, after FieldBag) []FieldChange {
	var changes []FieldChange
	for _, field := range textFields {
		oldVal := before.Texts[field]
		newVal := after.Texts[field]
		if !textEqual(oldVal, newVal) {
			changes = append(changes, FieldChange{Field: field, OldValue: oldVal, NewValue: newVal})
		}
	}
	for _, field := range idSetFields {
		oldSet := before.IDSets[field]
		newSet := after.IDSets[field]
		if !idSetEqual(oldSet, newSet) {
			changes = append(changes, FieldChange{
				Field:    field,
				OldValue: renderIDSet(oldSet),
				NewValue: renderIDSet(newSet),
			})
		}
	}
	return changes
}

// textEqual keeps nil distinct from "": a cleared field and a never-set field
// are different states.
func textEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idSetEqual(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}

func renderIDSet(ids []uuid.UUID) *string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	sort.Strings(strs)
	rendered := strings.Join(strs, ", ")
	return &rendered
}

func sortedIDs(set map[uuid.UUID]FieldBag) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

func textOrEmpty(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
