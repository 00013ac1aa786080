package handler

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docuvault/internal/document"
	"docuvault/internal/transport/http/response"
)

type DocumentHandler struct {
	docs   *document.Service
	logger *zap.Logger
}

func NewDocumentHandler(docs *document.Service, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, logger: logger}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, 400, response.CodeBadRequest, "multipart field 'file' is required")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, 400, response.CodeBadRequest, "cannot open uploaded file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, 400, response.CodeBadRequest, "cannot read uploaded file")
		return
	}

	result, err := h.docs.Upload(c.Request.Context(), document.UploadInput{
		Scope:     scope,
		UserID:    user.ID,
		Filename:  fileHeader.Filename,
		Data:      data,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.OK(c, gin.H{
		"document_id": result.Document.ID,
		"filename":    fileHeader.Filename,
		"size_bytes":  result.Document.SizeBytes,
		"chunk_count": result.ChunkCount,
		"uploaded_at": result.Document.UploadedAt,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	docs, err := h.docs.List(c.Request.Context(), scope, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		items = append(items, gin.H{
			"document_id":  d.ID,
			"filename":     d.Filename,
			"size_bytes":   d.SizeBytes,
			"total_chunks": d.TotalChunks,
			"uploaded_at":  d.UploadedAt,
			"processed":    d.Processed,
		})
	}
	response.OK(c, gin.H{"documents": items})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	documentID := c.Param("id")
	err := h.docs.Delete(c.Request.Context(), document.DeleteInput{
		Scope:      scope,
		UserID:     user.ID,
		DocumentID: documentID,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"document_id": documentID})
}
