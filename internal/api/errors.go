package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradebook-core/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindMalformedInput: http.StatusBadRequest,
	apperr.KindAuthorization:  http.StatusForbidden,
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindConflict:       http.StatusConflict,
}

// writeError maps a domain error to a status and the {"code","error"} body.
// Internal errors are logged and reported without their cause.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		s.Logger.WithError(err).WithField("request_id", c.GetString("RequestID")).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": "internal error",
		})
		return
	}

	var e *apperr.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Message
	}
	body := gin.H{"code": string(kind), "error": msg}
	if details := apperr.DetailsOf(err); len(details) > 0 {
		body["details"] = details
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": code, "error": msg})
}
