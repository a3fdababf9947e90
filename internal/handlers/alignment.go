package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/services"
	"github.com/normgate/normgate-backend/internal/types"
)

type AlignmentHandler struct {
	alignmentService services.AlignmentService
}

func NewAlignmentHandler(alignmentService services.AlignmentService) *AlignmentHandler {
	return &AlignmentHandler{alignmentService: alignmentService}
}

func (ah *AlignmentHandler) Start(c *gin.Context) {
	releaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid release id"))
		return
	}
	result, err := ah.alignmentService.StartAlignment(c.Request.Context(), releaseID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if result.NoChanges {
		RespondOK(c, result)
		return
	}
	RespondCreated(c, result)
}

func (ah *AlignmentHandler) Cancel(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid session id"))
		return
	}
	session, err := ah.alignmentService.CancelAlignment(c.Request.Context(), sessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

type finalizeRequest struct {
	ForceActivate bool `json:"force_activate"`
}

func (ah *AlignmentHandler) Finalize(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid session id"))
		return
	}
	var req finalizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, apierr.Validation("invalid request body").WithCause(err))
			return
		}
	}
	result, err := ah.alignmentService.FinalizeAlignment(c.Request.Context(), sessionID, req.ForceActivate)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

type submitReviewRequest struct {
	RequirementID uuid.UUID `json:"requirement_id"`
	Assessment    string    `json:"assessment"`
	Comment       *string   `json:"comment"`
}

func (ah *AlignmentHandler) SubmitReview(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid session id"))
		return
	}
	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body").WithCause(err))
		return
	}
	review, err := ah.alignmentService.SubmitReview(
		c.Request.Context(),
		sessionID,
		req.RequirementID,
		types.Assessment(req.Assessment),
		req.Comment,
	)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"review": review})
}

func (ah *AlignmentHandler) CompleteReview(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid session id"))
		return
	}
	reviewer, err := ah.alignmentService.CompleteReview(c.Request.Context(), sessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"reviewer": reviewer})
}

func (ah *AlignmentHandler) Dashboard(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid session id"))
		return
	}
	dashboard, err := ah.alignmentService.GetDashboard(c.Request.Context(), sessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, dashboard)
}

func (ah *AlignmentHandler) Remind(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid session id"))
		return
	}
	count, err := ah.alignmentService.SendReminders(c.Request.Context(), sessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"reminded": count})
}
