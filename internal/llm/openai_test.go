package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestRetryableAPIError(t *testing.T) {
	wrap := func(status int) error {
		return fmt.Errorf("failed to create completion: %w",
			&openai.APIError{HTTPStatusCode: status})
	}

	assert.True(t, retryableAPIError(wrap(http.StatusTooManyRequests)))
	assert.True(t, retryableAPIError(wrap(http.StatusInternalServerError)))
	assert.True(t, retryableAPIError(wrap(http.StatusBadGateway)))

	// A rejected request stays rejected no matter how often it is sent.
	assert.False(t, retryableAPIError(wrap(http.StatusBadRequest)))
	assert.False(t, retryableAPIError(wrap(http.StatusUnauthorized)))
	assert.False(t, retryableAPIError(wrap(http.StatusNotFound)))

	// Transport failures carry no API response and are worth retrying.
	assert.True(t, retryableAPIError(errors.New("connection reset")))
	assert.True(t, retryableAPIError(context.DeadlineExceeded))
}
