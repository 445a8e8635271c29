package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"share_server/server/common/errs"
	"share_server/server/common/middleware"
	"share_server/server/common/transport/httpresp"
	shareservice "share_server/server/share/service"
)

var validationMessages = []struct {
	err error
	msg string
}{
	{shareservice.ErrCannotAddSelf, httpresp.ErrCannotAddSelf},
	{shareservice.ErrTooManyPhones, httpresp.ErrTooManyPhones},
	{shareservice.ErrEmptyRecipients, httpresp.ErrEmptyRecipients},
	{shareservice.ErrTooManyRecipients, httpresp.ErrTooManyRecipients},
	{shareservice.ErrTitleTooLong, httpresp.ErrTitleTooLong},
	{shareservice.ErrDeviceIDTooLong, httpresp.ErrDeviceIDTooLong},
	{shareservice.ErrUsernameTooLong, httpresp.ErrUsernameTooLong},
	{shareservice.ErrPhoneTooLong, httpresp.ErrPhoneTooLong},
}

// writeError is the single place where service errors become HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httpresp.NewErrorResponse(httpresp.ErrAlreadyExists))
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(validationMessage(err)))
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
	default:
		h.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", middleware.RequestIDFromContext(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternal))
	}
}

func validationMessage(err error) string {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return v.msg
		}
	}
	return httpresp.ErrBadRequest
}
