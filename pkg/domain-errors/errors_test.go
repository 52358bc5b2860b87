package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodePersistence, "failed to save profile")

	assert.True(t, HasCode(err, CodePersistence))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save profile", MessageOf(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
}

func TestCodeOf(t *testing.T) {
	t.Run("wrapped domain error", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeNotFound, "account not found"))
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("plain error defaults to internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, "internal error", MessageOf(err))
		assert.False(t, Is(err, CodeInternal))
	})
}
