package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/ai"
	"github.com/maibvn/pal/internal/middleware"
	"github.com/maibvn/pal/internal/pkg/errcode"
	appErr "github.com/maibvn/pal/internal/pkg/errors"
	"github.com/maibvn/pal/internal/pkg/response"
)

const ctxShowErrorDetail = "show_error_detail"

func showErrorDetail(show bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxShowErrorDetail, show)
		c.Next()
	}
}

func withDetail(c *gin.Context, msg string, err error) string {
	if c.GetBool(ctxShowErrorDetail) {
		return msg + ": " + err.Error()
	}
	return msg
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.RequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrGeneration):
		response.Error(c, errcode.ErrGeneration, withDetail(c, "failed to generate response", err))
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, err.Error())
	case errors.Is(err, appErr.ErrUploadFailed):
		response.Error(c, errcode.ErrUploadFailed, withDetail(c, "failed to store upload", err))
	case errors.Is(err, appErr.ErrUnsupportedType):
		response.Error(c, errcode.ErrUnsupportedFile, "Invalid file type. Only PDF, HTML, text, Markdown and Word documents are allowed.")
	default:
		response.Error(c, errcode.ErrInternal, withDetail(c, "internal error", err))
	}
}

func fileTooLarge(c *gin.Context, limit int64) {
	response.Error(c, errcode.ErrFileTooLarge, fmt.Sprintf("File too large. Maximum size is %s", formatUploadLimit(limit)))
}

func formatUploadLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes < mb {
		return strconv.FormatInt(bytes, 10) + "B"
	}
	return strconv.FormatInt(bytes/mb, 10) + "MB"
}
