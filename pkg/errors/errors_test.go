package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithInternalCopies(t *testing.T) {
	internal := stdErrors.New("deadlock detected")
	with := ErrConflict.WithInternal(internal)

	require.NotSame(t, ErrConflict, with)
	require.Nil(t, ErrConflict.Internal)
	require.Equal(t, "The resource was changed concurrently, reload and retry: deadlock detected", with.Error())
	require.ErrorIs(t, with, internal)
}

func TestWithMessageCopies(t *testing.T) {
	out := ErrInvalidStateTransition.WithMessage("invitation is DECLINED")
	require.NotSame(t, ErrInvalidStateTransition, out)
	require.Equal(t, "invitation is DECLINED", out.Message)
	require.Equal(t, "INVALID_STATE_TRANSITION", out.Code)
	require.Equal(t, http.StatusConflict, out.StatusCode)
	require.Equal(t, "The invitation cannot make this transition", ErrInvalidStateTransition.Message)

	require.Equal(t, ErrValidation.Message, ErrValidation.WithMessage("").Message)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))
	require.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("handler: %w", ErrInvalidTimezone)
	require.Same(t, ErrInvalidTimezone, FromError(wrapped))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.EqualError(t, out.Internal, "raw")
}

func TestNilReceivers(t *testing.T) {
	var e *AppError
	require.Equal(t, "<nil>", e.Error())
	require.Nil(t, e.Unwrap())
	require.Nil(t, e.WithMessage("x"))
	require.Nil(t, e.WithInternal(stdErrors.New("x")))
}
