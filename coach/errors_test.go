package coach

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoachErrorIsComparesCode(t *testing.T) {
	err := WrapError(ErrorDisconnected, "stream connection lost", errors.New("eof"))
	wrapped := fmt.Errorf("chat: %w", err)

	require.ErrorIs(t, wrapped, NewError(ErrorDisconnected, ""))
	require.NotErrorIs(t, wrapped, NewError(ErrorServer, ""))
	require.Equal(t, "disconnected: stream connection lost (wrapped: eof)", err.Error())
	require.EqualError(t, errors.Unwrap(err), "eof")
}

func TestErrorClassifiers(t *testing.T) {
	require.True(t, IsServerError(NewError(ErrorServer, "boom")))
	require.False(t, IsServerError(nil))
	require.False(t, IsServerError(errors.New("plain")))

	require.True(t, IsConnectionError(NewError(ErrorConnection, "dial")))
	require.True(t, IsConnectionError(NewError(ErrorTimeout, "slow")))
	require.False(t, IsConnectionError(NewError(ErrorDecode, "bad")))
	require.False(t, IsConnectionError(nil))

	require.Equal(t, ErrorUnknown, CodeOf(errors.New("plain")))
	require.Equal(t, "unknown_code_99", ErrorCode(99).String())
}

func TestIsStreamError(t *testing.T) {
	for _, code := range []ErrorCode{ErrorServer, ErrorDecode, ErrorSerialization, ErrorUnhandledType, ErrorDispatch} {
		require.True(t, IsStreamError(NewError(code, "x")), code.String())
	}
	require.False(t, IsStreamError(NewError(ErrorDisconnected, "x")))
	require.False(t, IsStreamError(errors.New("plain")))
}
