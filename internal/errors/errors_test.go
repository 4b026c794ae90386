package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMosaicError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeProviderEmbed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), ErrCodeProviderEmbed)
	assert.Equal(t, CategoryProvider, err.Category)
	assert.True(t, err.Retryable)
}

func TestMosaicError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeStoreQuery, "query failed", nil)
	b := New(ErrCodeStoreQuery, "different message", nil)
	c := New(ErrCodeInvalidInput, "bad input", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestMosaicError_Categories(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		retry    bool
	}{
		{ErrCodeInvalidInput, CategoryValidation, false},
		{ErrCodeTenantRequired, CategoryValidation, false},
		{ErrCodeStoreQuery, CategoryStore, false},
		{ErrCodeProviderEmbed, CategoryProvider, true},
		{ErrCodeProviderRerank, CategoryProvider, true},
		{ErrCodeProviderTimeout, CategoryProvider, true},
		{ErrCodeInternal, CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestIsRetryable_ThroughWrapping(t *testing.T) {
	inner := New(ErrCodeProviderTimeout, "deadline exceeded", nil)
	wrapped := fmt.Errorf("semantic search: %w", inner)

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	var err *MosaicError = Wrap(ErrCodeStoreQuery, nil)
	assert.Nil(t, err)
}
