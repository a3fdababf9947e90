package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/services"
)

type RequirementHandler struct {
	requirementService services.RequirementService
	releaseService     services.ReleaseService
}

func NewRequirementHandler(requirementService services.RequirementService, releaseService services.ReleaseService) *RequirementHandler {
	return &RequirementHandler{
		requirementService: requirementService,
		releaseService:     releaseService,
	}
}

func (rh *RequirementHandler) Create(c *gin.Context) {
	var input services.RequirementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.Validation("invalid request body").WithCause(err))
		return
	}
	req, err := rh.requirementService.Create(c.Request.Context(), input)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, gin.H{"requirement": req})
}

func (rh *RequirementHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid requirement id"))
		return
	}
	var input services.RequirementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, apierr.Validation("invalid request body").WithCause(err))
		return
	}
	req, err := rh.requirementService.Update(c.Request.Context(), id, input)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"requirement": req})
}

func (rh *RequirementHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid requirement id"))
		return
	}
	req, err := rh.requirementService.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"requirement": req})
}

func (rh *RequirementHandler) List(c *gin.Context) {
	reqs, err := rh.requirementService.List(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"requirements": reqs})
}

func (rh *RequirementHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid requirement id"))
		return
	}
	if err := rh.requirementService.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// CanDelete exposes the deletion-prevention check without performing the
// delete, so editors can see the blocking versions up front.
func (rh *RequirementHandler) CanDelete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid requirement id"))
		return
	}
	check, err := rh.releaseService.CanDelete(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, check)
}
