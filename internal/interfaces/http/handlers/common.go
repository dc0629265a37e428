package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/interfaces/http/middleware"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError maps err to a status and writes the error body.  Server-side
// messages are masked; they may quote detector or storage responses.
func writeError(c *gin.Context, logger logging.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:      string(errors.CodeInvalidParam),
			Message:   "request body too large",
			RequestID: middleware.GetRequestID(c),
		})
		return
	}

	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	resp := ErrorResponse{
		Code:      string(code),
		Message:   errors.DefaultMessageForCode(code),
		RequestID: middleware.GetRequestID(c),
	}

	var ae *errors.AppError
	if status < 500 && errors.As(err, &ae) {
		resp.Message = ae.Message
		if ae.Detail != "" {
			resp.Message += ": " + ae.Detail
		}
	}
	if status >= 500 {
		logger.Error("request failed",
			logging.String("code", string(code)),
			logging.String("request_id", resp.RequestID),
			logging.Err(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

//Personal.AI order the ending
