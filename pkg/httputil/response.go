package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Code    int          `json:"code,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: "success", Data: data})
}

// RespondWithError sends an error response. Errors that are not an AppError
// are reported as internal errors without leaking their text.
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal server error"
	code := int(errors.ErrInternal)

	if appErr, ok := errors.As(err); ok {
		statusCode = appErr.StatusCode()
		code = int(appErr.Code)
		if appErr.Code != errors.ErrInternal {
			message = appErr.Message
		}
	}
	if statusCode >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.JSON(statusCode, Response{
		Status:  "error",
		Message: message,
		Code:    code,
	})
}

// RespondWithBindError reports a request that failed binding or validation.
func RespondWithBindError(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)

	resp := Response{
		Status:  "error",
		Message: "invalid request",
		Code:    int(errors.ErrBadRequest),
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		resp.Message = "validation failed"
		for _, fe := range verrs {
			resp.Errors = append(resp.Errors, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	c.JSON(http.StatusBadRequest, resp)
}

// ParamUUID parses the named path parameter. On failure it writes a 400
// response and returns false.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondWithError(c, errors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}
