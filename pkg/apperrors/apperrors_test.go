package apperrors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("stages[0].weight", "must be between 0 and 100")
	assert.Contains(t, err.Error(), "stages[0].weight")
	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(errors.New("boring")))
}

func TestValidationErrorWrapped(t *testing.T) {
	wrapped := errors.New("context: " + NewValidationError("name", "required").Error())
	assert.False(t, IsValidationError(wrapped), "plain string wrap should not satisfy errors.As")

	var inner error = NewValidationError("name", "required")
	outer := errors.Join(inner, errors.New("extra"))
	assert.True(t, IsValidationError(outer))
}

func TestCompilationError(t *testing.T) {
	err := NewCompilationError(
		FieldError{Field: "stages[1].behaviors[0]", Message: "phrase list empty"},
		FieldError{Field: "stages[2]", Message: "weight sum exceeds 100"},
	)
	require.True(t, IsCompilationError(err))
	assert.Contains(t, err.Error(), "phrase list empty")
	assert.Len(t, err.Errors, 2)
}

func TestCompilationErrorEmpty(t *testing.T) {
	err := NewCompilationError()
	assert.Equal(t, "compilation failed", err.Error())
}

func TestPreconditionError(t *testing.T) {
	err := NewPreconditionError("blueprint is not published")
	assert.True(t, IsPreconditionError(err))
	assert.Contains(t, err.Error(), "not published")
}

func TestTranscriptionErrorUnwraps(t *testing.T) {
	cause := errors.New("asr timeout")
	err := NewTranscriptionError("rec-123", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "rec-123")
}

func TestDetectionWarning(t *testing.T) {
	w := NewDetectionWarning("step-1", "embedding provider unavailable, used hash fallback")
	assert.Contains(t, w.Error(), "step-1")
}

func TestLLMValidationErrorUnwraps(t *testing.T) {
	cause := errors.New("schema mismatch: missing field 'score'")
	err := NewLLMValidationError("closing", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "closing")
}

func TestInternalErrorUnwraps(t *testing.T) {
	cause := errors.New("nil pointer somewhere")
	err := NewInternalError(cause)
	assert.ErrorIs(t, err, cause)
}

func TestTruncate(t *testing.T) {
	short := "all good"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("x", MaxStoredMessageLen+500)
	truncated := Truncate(long)
	assert.True(t, strings.HasSuffix(truncated, "... (truncated)"))
	assert.Less(t, len(truncated), len(long))
}
