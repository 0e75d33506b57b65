package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/middleware"
	"github.com/xxxsen/rentdesk/internal/pkg/errcode"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
	"github.com/xxxsen/rentdesk/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	return middleware.UserID(c)
}

func badRequest(c *gin.Context) {
	response.ErrorStatus(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		reason := appErr.AuthReason(err)
		if reason == "" {
			reason = "unauthorized"
		}
		logger.Info("request unauthorized", zap.String("reason", reason))
		response.ErrorStatus(c, http.StatusUnauthorized, errcode.ErrUnauthorized, reason)
	case errors.Is(err, appErr.ErrForbidden):
		response.ErrorStatus(c, http.StatusForbidden, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.ErrorStatus(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.ErrorStatus(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.ErrorStatus(c, http.StatusConflict, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.ErrorStatus(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	default:
		logger.Error("request failed")
		response.ErrorStatus(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}
