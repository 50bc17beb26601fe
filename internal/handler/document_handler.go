package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maibvn/pal/internal/pkg/errcode"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
	"github.com/maibvn/pal/internal/pkg/response"
	"github.com/maibvn/pal/internal/service"
)

const uploadField = "document"

type DocumentHandler struct {
	documents   *service.DocumentService
	maxFileSize int64
}

func NewDocumentHandler(documents *service.DocumentService, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxFileSize: maxFileSize}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+1<<20)
	}
	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fileTooLarge(c, h.maxFileSize)
			return
		}
		response.Error(c, errcode.ErrInvalidFile, "No file uploaded")
		return
	}
	if h.maxFileSize > 0 && file.Size > h.maxFileSize {
		fileTooLarge(c, h.maxFileSize)
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	doc, err := h.documents.Upload(c.Request.Context(), service.UploadInput{
		OriginalName: file.Filename,
		MimeType:     file.Header.Get("Content-Type"),
		Size:         file.Size,
		Body:         opened,
	})
	switch {
	case errors.Is(err, appErr.ErrFileTooLarge):
		fileTooLarge(c, h.maxFileSize)
		return
	case err != nil:
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"id":           doc.ID,
		"originalName": doc.OriginalName,
		"size":         doc.Size,
		"mimeType":     doc.MimeType,
		"status":       doc.Status,
		"uploadedAt":   doc.UploadedAt,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	doc, err := h.documents.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": doc.ID, "status": doc.Status})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.documents.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *DocumentHandler) Download(c *gin.Context) {
	doc, rc, err := h.documents.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Type", doc.MimeType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalName}))
	c.Header("Content-Length", fmt.Sprintf("%d", doc.Size))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
