package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"kbassist/internal/app"
	"kbassist/internal/transport/http/middleware"
	"kbassist/internal/transport/http/response"
)

// flexUint decodes ids sent either as JSON numbers or numeric strings.
type flexUint uint

func (f *flexUint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(v)
	return nil
}

func toUints(in []flexUint) []uint {
	out := make([]uint, 0, len(in))
	for _, v := range in {
		out = append(out, uint(v))
	}
	return out
}

func parseUintQuery(c *gin.Context, keys ...string) (uint, bool) {
	for _, key := range keys {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || v == 0 {
			return 0, false
		}
		return uint(v), true
	}
	return 0, false
}

// validEmail runs gin's validator on a single value.
func validEmail(email string) bool {
	return binding.Validator.ValidateStruct(struct {
		Email string `binding:"email"`
	}{Email: email}) == nil
}

func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return userID, ok
}

// sameUser rejects a client-supplied user id that differs from the token's.
func sameUser(c *gin.Context, tokenUserID, claimed uint) bool {
	if claimed != 0 && claimed != tokenUserID {
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "user_id does not match token")
		return false
	}
	return true
}

func sameUserQuery(c *gin.Context, tokenUserID uint, key string) bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid "+key)
		return false
	}
	return sameUser(c, tokenUserID, uint(v))
}

type errorMapping struct {
	err    error
	status int
	code   int
}

var serviceErrors = []errorMapping{
	{app.ErrInvalidInput, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrUsernameExists, http.StatusBadRequest, response.CodeUsernameExists},
	{app.ErrEmailExists, http.StatusBadRequest, response.CodeEmailExists},
	{app.ErrInvalidCredential, http.StatusUnauthorized, response.CodeInvalidCredentials},
	{app.ErrForbidden, http.StatusForbidden, response.CodeForbidden},
	{app.ErrUserNotFound, http.StatusNotFound, response.CodeUserNotFound},
	{app.ErrWrongPassword, http.StatusBadRequest, response.CodePasswordInvalid},
	{app.ErrPasswordUnchanged, http.StatusBadRequest, response.CodePasswordInvalid},
	{app.ErrKnowledgeBaseNotFound, http.StatusNotFound, response.CodeKnowledgeBaseNotFound},
	{app.ErrDocumentNotFound, http.StatusNotFound, response.CodeDocumentNotFound},
	{app.ErrChunkNotFound, http.StatusNotFound, response.CodeChunkNotFound},
	{app.ErrSessionNotFound, http.StatusNotFound, response.CodeSessionNotFound},
	{app.ErrSessionEnded, http.StatusConflict, response.CodeSessionEnded},
	{app.ErrNoKnowledgeBase, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrMessageEmpty, http.StatusBadRequest, response.CodeMessageInvalid},
	{app.ErrMessageTooLong, http.StatusBadRequest, response.CodeMessageInvalid},
	{app.ErrTitleInvalid, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge},
	{app.ErrLLMConfig, http.StatusServiceUnavailable, response.CodeUnavailable},
	{app.ErrMessageEnqueue, http.StatusServiceUnavailable, response.CodeUnavailable},
	{app.ErrIngestEnqueue, http.StatusServiceUnavailable, response.CodeUnavailable},
}

// writeServiceError maps sentinel errors to a status and envelope; anything else is a
// logged 500 with fallback as the message.
func writeServiceError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			response.Error(c, m.status, m.code, m.err.Error())
			return
		}
	}
	_ = c.Error(err)
	if logger != nil {
		logger.Error(fallback, zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}
