package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/services"
	"github.com/normgate/normgate-backend/internal/types"
)

type ReleaseHandler struct {
	releaseService services.ReleaseService
}

func NewReleaseHandler(releaseService services.ReleaseService) *ReleaseHandler {
	return &ReleaseHandler{releaseService: releaseService}
}

type createReleaseRequest struct {
	Version     string  `json:"version"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (rh *ReleaseHandler) Create(c *gin.Context) {
	var req createReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body").WithCause(err))
		return
	}
	result, err := rh.releaseService.CreateRelease(c.Request.Context(), req.Version, req.Name, req.Description)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, result)
}

func (rh *ReleaseHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid release id"))
		return
	}
	includeSnapshots := c.Query("includeSnapshots") == "true"
	detail, err := rh.releaseService.GetRelease(c.Request.Context(), id, includeSnapshots)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, detail)
}

func (rh *ReleaseHandler) GetByVersion(c *gin.Context) {
	release, err := rh.releaseService.GetReleaseByVersion(c.Request.Context(), c.Param("version"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"release": release})
}

func (rh *ReleaseHandler) List(c *gin.Context) {
	var statusFilter *types.ReleaseStatus
	if raw := c.Query("status"); raw != "" {
		status := types.ReleaseStatus(raw)
		statusFilter = &status
	}
	releases, err := rh.releaseService.ListReleases(c.Request.Context(), statusFilter)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"releases": releases})
}

func (rh *ReleaseHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid release id"))
		return
	}
	if err := rh.releaseService.DeleteRelease(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

func (rh *ReleaseHandler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid release id"))
		return
	}
	release, err := rh.releaseService.ArchiveRelease(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"release": release})
}

func (rh *ReleaseHandler) Stats(c *gin.Context) {
	stats, err := rh.releaseService.Stats(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, stats)
}

// Compare diffs two frozen releases, or a frozen release against the live set
// when `to` is the literal "live".
func (rh *ReleaseHandler) Compare(c *gin.Context) {
	fromID, err := uuid.Parse(c.Query("from"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid from release id"))
		return
	}
	toRaw := c.Query("to")
	if toRaw == "live" {
		result, err := rh.releaseService.CompareReleaseToLive(c.Request.Context(), fromID)
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, result)
		return
	}
	toID, err := uuid.Parse(toRaw)
	if err != nil {
		RespondError(c, apierr.Validation("invalid to release id"))
		return
	}
	result, err := rh.releaseService.CompareReleases(c.Request.Context(), fromID, toID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

// Export returns flattened rows of a release's snapshots, or of the live set
// when no release id is given.
func (rh *ReleaseHandler) Export(c *gin.Context) {
	var releaseID *uuid.UUID
	if raw := c.Query("releaseId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, apierr.Validation("invalid release id"))
			return
		}
		releaseID = &id
	}
	rows, err := rh.releaseService.GetExportRows(c.Request.Context(), releaseID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"rows": rows})
}
