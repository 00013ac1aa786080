package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docuvault/internal/feedback"
	"docuvault/internal/transport/http/response"
)

type FeedbackHandler struct {
	svc    *feedback.Service
	logger *zap.Logger
}

func NewFeedbackHandler(svc *feedback.Service, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{svc: svc, logger: logger}
}

type submitFeedbackRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Rating    string `json:"rating" binding:"required"`
	Comment   string `json:"comment"`
}

func (h *FeedbackHandler) Submit(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "message_id and rating are required")
		return
	}

	fb, err := h.svc.Submit(c.Request.Context(), feedback.SubmitInput{
		Scope:     scope,
		UserID:    user.ID,
		MessageID: req.MessageID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, gin.H{
		"feedback_id": fb.ID,
		"message_id":  fb.MessageID,
		"rating":      fb.Rating,
	})
}
