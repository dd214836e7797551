package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-querykit/pkg/retry"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
		Model:      "gpt-4o",
		Endpoint:   "https://api.openai.com/v1",
		Cause:      errors.New("upstream"),
	}

	assert.Equal(t, "endpoint HTTP 503 model=gpt-4o endpoint=api.openai.com server error: upstream", err.Error())
	assert.NotContains(t, err.Error(), "/v1")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, ErrorTypeAuth, false, 401},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, ErrorTypeRate, true, 429},
		{"openai 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, ErrorTypeEndpoint, true, 503},
		{"model missing", errors.New(`model "llama9" not found`), ErrorTypeModel, false, 0},
		{"404", errors.New("status code: 404"), ErrorTypeEndpoint, false, 404},
		{"refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), ErrorTypeEndpoint, true, 0},
		{"deadline", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true, 0},
		{"canceled", errors.New("context canceled"), ErrorTypeEndpoint, false, 0},
		{"overloaded", errors.New("anthropic: overloaded_error"), ErrorTypeEndpoint, true, 0},
		{"other", errors.New("unexpected EOF in body"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.retryable, retry.IsRetryable(got))
		})
	}
}

func TestClassifyError_KeepsClassified(t *testing.T) {
	original := NewError(ErrorTypeModel, "model not found", false, nil)
	wrapped := fmt.Errorf("generate: %w", original)

	assert.Same(t, original, ClassifyError(wrapped))
	assert.Equal(t, ErrorTypeModel, GetErrorType(wrapped))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.Nil(t, ClassifyError(nil))
}
