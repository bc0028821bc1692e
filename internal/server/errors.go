package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var registerFieldNames sync.Once

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func statusForKind(kind serviceerror.Kind) int {
	switch kind {
	case serviceerror.KindUnauthorized:
		return http.StatusUnauthorized
	case serviceerror.KindNotFound:
		return http.StatusNotFound
	case serviceerror.KindValidation:
		return http.StatusBadRequest
	case serviceerror.KindForbidden:
		return http.StatusForbidden
	case serviceerror.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	var serviceErr *serviceerror.Error
	if !errors.As(err, &serviceErr) {
		h.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}
	status := statusForKind(serviceErr.Kind())
	response := errorResponse{Error: serviceErr.Reason(), Code: serviceErr.Code(), Message: serviceErr.Message()}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("code", serviceErr.Code()),
			zap.Error(err))
		response.Message = ""
	}
	c.JSON(status, response)
}

func (h *httpHandler) respondInvalidRequest(c *gin.Context, err error) {
	response := errorResponse{Error: "invalid_request"}
	if err != nil {
		response.Message = describeInvalidRequest(err)
	}
	c.JSON(http.StatusBadRequest, response)
}

// useJSONFieldNames makes validation errors name fields the way clients send them.
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func describeInvalidRequest(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		parts = append(parts, describeFieldError(fieldErr))
	}
	return strings.Join(parts, "; ")
}

func describeFieldError(fieldErr validator.FieldError) string {
	field := fieldErr.Field()
	switch fieldErr.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if fieldErr.Kind() == reflect.Slice {
			return field + " must have at most " + fieldErr.Param() + " items"
		}
		return field + " must be at most " + fieldErr.Param() + " characters"
	default:
		return field + " failed " + fieldErr.Tag() + " validation"
	}
}
