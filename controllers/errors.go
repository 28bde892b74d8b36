package controllers

import (
	"errors"
	"net/http"

	apperrors "catalog-service/common/errors"
	"catalog-service/common/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps a service error to its HTTP response.
func respondError(c *gin.Context, err error) {
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "The given data was invalid.",
			"errors":  verr.Fields,
		})
		return
	}

	log := logger.FromContext(c.Request.Context())
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && errors.Is(appErr, apperrors.ErrUploadFailed) {
		log.Error("upload failed", zap.Error(err))
		detail := appErr.Message
		if appErr.Err != nil {
			detail = appErr.Err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Upload failed", "error": detail})
		return
	}

	if appErr != nil {
		if appErr.Code >= http.StatusInternalServerError {
			log.Error("request failed", zap.Error(err))
		}
		c.JSON(appErr.Code, gin.H{"success": false, "message": appErr.Message})
		return
	}

	log.Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": apperrors.ErrInternalServer.Message})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
}
