package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
)

type APIError struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps err onto the envelope using its apierr kind. Errors
// outside the taxonomy become a 500 with code "internal".
func RespondAPIError(c *gin.Context, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := APIError{Message: ae.Error(), Code: ae.Code}
	if body.Code == "" {
		body.Code = string(ae.Kind)
	}
	if sid, ok := ae.Details["session_id"].(string); ok {
		body.SessionID = sid
	}
	switch v := ae.Details["duplicate_of"].(type) {
	case uuid.UUID:
		body.DuplicateOf = v.String()
	case string:
		body.DuplicateOf = v
	}
	c.JSON(status, ErrorEnvelope{Error: body})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
