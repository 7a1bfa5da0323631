package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithKeepsSentinelIdentity(t *testing.T) {
	cause := errors.New("firestore: deadline exceeded")
	err := fmt.Errorf("update ana: %w", ErrStoreWrite.With(cause, "could not save student"))

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStoreSubscription)

	appErr := FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "STORE_WRITE_ERROR", appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, "could not save student: firestore: deadline exceeded", appErr.Error())
	assert.Equal(t, "record store rejected the write", ErrStoreWrite.Message, "sentinel untouched")
}

func TestWithEmptyMessageUsesDefault(t *testing.T) {
	err := ErrStoreSubscription.With(errors.New("stream closed"), "")
	assert.Equal(t, "record store subscription unavailable", err.Message)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	assert.Nil(t, FromError(nil))

	err := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Equal(t, "internal server error", err.Message)
}

func TestCloneOverridesMessage(t *testing.T) {
	clone := Clone(ErrNotFound, "student not found")
	assert.Equal(t, "student not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.ErrorIs(t, clone, ErrNotFound)
	assert.Nil(t, Clone(nil, "x"))
}
