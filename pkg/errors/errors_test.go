package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := DriverBusy("driver-1")
	wrapped := fmt.Errorf("accept: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrDriverBusy))
	assert.False(t, stderrors.Is(wrapped, ErrInvalidTransition))
}

func TestInvalidTransition_NamesBothStatuses(t *testing.T) {
	err := InvalidTransition("CANCELLED", "IN_PROGRESS")

	assert.Contains(t, err.Message, "CANCELLED")
	assert.Contains(t, err.Message, "IN_PROGRESS")
	assert.Equal(t, http.StatusBadRequest, err.Status)
}

func TestGetAppError_WrapsUnknownAsInternal(t *testing.T) {
	appErr := GetAppError(stderrors.New("boom"))

	assert.Equal(t, CodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestRouteUnavailable_KeepsCause(t *testing.T) {
	cause := stderrors.New("provider timeout")
	err := RouteUnavailable(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrRouteUnavailable)
	assert.Contains(t, err.Error(), "provider timeout")
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(fmt.Errorf("save: %w", TripNotFound("t-1"))))
	assert.False(t, IsAppError(stderrors.New("boom")))
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("bad json")
	err := Wrap(cause, "failed to decode trip")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to decode trip: bad json", err.Error())
	assert.NoError(t, Wrap(nil, "ignored"))
}
