package api

import (
	"errors"
	"net/http"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// writeError maps the apperrors taxonomy onto an HTTP status and a JSON
// error envelope.
func writeError(c *gin.Context, err error) {
	status, code := statusForError(err)
	body := gin.H{
		"code":    code,
		"message": err.Error(),
	}

	var compileErr *apperrors.CompilationError
	if errors.As(err, &compileErr) {
		body["errors"] = errorFields(compileErr.Errors)
	}

	c.JSON(status, gin.H{"error": body})
}

func statusForError(err error) (int, string) {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case apperrors.IsValidationError(err):
		return http.StatusBadRequest, "validation_error"
	case apperrors.IsPreconditionError(err):
		return http.StatusConflict, "precondition_failed"
	case apperrors.IsCompilationError(err):
		return http.StatusUnprocessableEntity, "compilation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
