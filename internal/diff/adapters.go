package diff

import (
	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/types"
)

// FromSnapshot adapts a frozen snapshot into a FieldBag.
func FromSnapshot(snap *types.RequirementSnapshot) FieldBag {
	return FieldBag{
		Texts: map[string]*string{
			FieldShortreq:   &snap.Shortreq,
			FieldDetails:    snap.Details,
			FieldLanguage:   snap.Language,
			FieldExample:    snap.Example,
			FieldMotivation: snap.Motivation,
			FieldUsecase:    snap.Usecase,
			FieldNorm:       snap.Norm,
			FieldChapter:    snap.Chapter,
		},
		IDSets: map[string][]uuid.UUID{
			FieldUsecaseIDs: types.ParseIDList(snap.UsecaseIDs),
			FieldNormIDs:    types.ParseIDList(snap.NormIDs),
		},
	}
}

// FromRequirement adapts the current live projection into a FieldBag with the
// same keys, so snapshots and live rows are interchangeable inputs.
func FromRequirement(req *types.Requirement) FieldBag {
	return FieldBag{
		Texts: map[string]*string{
			FieldShortreq:   &req.Shortreq,
			FieldDetails:    req.Details,
			FieldLanguage:   req.Language,
			FieldExample:    req.Example,
			FieldMotivation: req.Motivation,
			FieldUsecase:    req.Usecase,
			FieldNorm:       req.Norm,
			FieldChapter:    req.Chapter,
		},
		IDSets: map[string][]uuid.UUID{
			FieldUsecaseIDs: types.ParseIDList(req.UsecaseIDs),
			FieldNormIDs:    types.ParseIDList(req.NormIDs),
		},
	}
}

// SnapshotSet keys snapshots by their logical requirement id.
func SnapshotSet(snaps []*types.RequirementSnapshot) map[uuid.UUID]FieldBag {
	set := make(map[uuid.UUID]FieldBag, len(snaps))
	for _, snap := range snaps {
		set[snap.RequirementID] = FromSnapshot(snap)
	}
	return set
}

// RequirementSet keys live requirements by id.
func RequirementSet(reqs []*types.Requirement) map[uuid.UUID]FieldBag {
	set := make(map[uuid.UUID]FieldBag, len(reqs))
	for _, req := range reqs {
		set[req.ID] = FromRequirement(req)
	}
	return set
}
