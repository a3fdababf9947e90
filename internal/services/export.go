package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
)

// ExportRow is one requirement in the shape the document/spreadsheet renderer
// consumes, whether it came from the live table or a frozen release. Rendering
// itself is the renderer collaborator's concern.
type ExportRow struct {
	RequirementID uuid.UUID      `json:"requirement_id"`
	Shortreq      string         `json:"shortreq"`
	Details       *string        `json:"details"`
	Language      *string        `json:"language"`
	Example       *string        `json:"example"`
	Motivation    *string        `json:"motivation"`
	Usecase       *string        `json:"usecase"`
	Norm          *string        `json:"norm"`
	Chapter       *string        `json:"chapter"`
	UsecaseIDs    datatypes.JSON `json:"usecase_ids"`
	NormIDs       datatypes.JSON `json:"norm_ids"`
	// Source is "live" or the release version the row was frozen in.
	Source   string     `json:"source"`
	FrozenAt *time.Time `json:"frozen_at,omitempty"`
}

// GetExportRows returns the live requirement set when releaseID is nil, else
// the named release's frozen snapshots.
func (rs *releaseService) GetExportRows(ctx context.Context, releaseID *uuid.UUID) ([]*ExportRow, error) {
	dbc := dbctx.Context{Ctx: ctx}

	if releaseID == nil {
		live, err := rs.requirementRepo.ListAll(dbc)
		if err != nil {
			return nil, err
		}
		rows := make([]*ExportRow, 0, len(live))
		for _, req := range live {
			rows = append(rows, &ExportRow{
				RequirementID: req.ID,
				Shortreq:      req.Shortreq,
				Details:       req.Details,
				Language:      req.Language,
				Example:       req.Example,
				Motivation:    req.Motivation,
				Usecase:       req.Usecase,
				Norm:          req.Norm,
				Chapter:       req.Chapter,
				UsecaseIDs:    req.UsecaseIDs,
				NormIDs:       req.NormIDs,
				Source:        "live",
			})
		}
		return rows, nil
	}

	detail, err := rs.GetRelease(ctx, *releaseID, true)
	if err != nil {
		return nil, err
	}
	rows := make([]*ExportRow, 0, len(detail.Snapshots))
	for _, snap := range detail.Snapshots {
		frozenAt := snap.FrozenAt
		rows = append(rows, &ExportRow{
			RequirementID: snap.RequirementID,
			Shortreq:      snap.Shortreq,
			Details:       snap.Details,
			Language:      snap.Language,
			Example:       snap.Example,
			Motivation:    snap.Motivation,
			Usecase:       snap.Usecase,
			Norm:          snap.Norm,
			Chapter:       snap.Chapter,
			UsecaseIDs:    snap.UsecaseIDs,
			NormIDs:       snap.NormIDs,
			Source:        detail.Release.Version,
			FrozenAt:      &frozenAt,
		})
	}
	return rows, nil
}
