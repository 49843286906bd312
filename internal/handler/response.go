package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/billfox/dunning-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// AbortWithError maps the error taxonomy to HTTP status codes.
func AbortWithError(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
	}
}
