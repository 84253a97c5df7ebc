package internal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", E(ErrStore, "insert", "", cause))

	assert.True(t, errors.Is(err, ErrStore))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrProvider))
}

func TestError_InvalidRecurrenceIsValidation(t *testing.T) {
	err := E(ErrInvalidRecurrence, "expand", "empty rule", nil)
	assert.True(t, errors.Is(err, ErrInvalidRecurrence))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(E(ErrValidation, "", "", nil), ErrInvalidRecurrence))
}

func TestError_Message(t *testing.T) {
	err := E(ErrAlreadyInProgress, "import", "import already in progress", nil)
	assert.Equal(t, "import: already in progress: import already in progress", err.Error())
	assert.Equal(t, "import already in progress", Reason(err))
	assert.Equal(t, "plain", Reason(errors.New("plain")))
}

func TestStoreErr(t *testing.T) {
	assert.Nil(t, StoreErr("op", nil))

	err := StoreErr("op", errors.New("disk"))
	assert.True(t, errors.Is(err, ErrStore))

	nf := E(ErrNotFound, "find", "", nil)
	assert.Same(t, nf, StoreErr("op", nf))
}

func TestProviderErr(t *testing.T) {
	assert.Nil(t, ProviderErr("op", nil))

	err := ProviderErr("list events", errors.New("connection reset"))
	assert.True(t, errors.Is(err, ErrProvider))

	expired := E(ErrSyncTokenExpired, "list events", "", nil)
	assert.Same(t, expired, ProviderErr("op", expired))
}
