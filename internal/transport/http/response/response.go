package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	CodeOK                    = 0
	CodeBadRequest            = 40000
	CodeUsernameExists        = 40001
	CodeEmailExists           = 40002
	CodeMessageInvalid        = 40003
	CodePasswordInvalid       = 40004
	CodeUnauthorized          = 40100
	CodeInvalidCredentials    = 40101
	CodeForbidden             = 40300
	CodeSessionNotFound       = 40401
	CodeKnowledgeBaseNotFound = 40402
	CodeDocumentNotFound      = 40403
	CodeUserNotFound          = 40404
	CodeChunkNotFound         = 40405
	CodeSessionEnded          = 40901
	CodeFileTooLarge          = 41300
	CodeInternalServer        = 50000
	CodeUnavailable           = 50300
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  StatusSuccess,
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  StatusSuccess,
		Code:    CodeOK,
		Message: "created",
		Data:    data,
	})
}

// Flat writes a success body whose fields sit beside "status" instead of under "data".
func Flat(c *gin.Context, httpStatus int, fields gin.H) {
	body := gin.H{"status": StatusSuccess, "code": CodeOK}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(httpStatus, body)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Status:  StatusError,
		Code:    code,
		Message: message,
	})
}
