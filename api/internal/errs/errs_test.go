package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("upload: %w", &Error{Kind: FileTooLarge, Detail: "11 MB"})

	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.False(t, errors.Is(err, ErrInvalidFileType))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	e := Wrap(TransportUnknown, cause)

	require.ErrorIs(t, e, cause)
	assert.Equal(t, "socket closed", e.Detail)
	assert.Equal(t, "TRANSPORT_UNKNOWN: socket closed", e.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NoInput, KindOf(fmt.Errorf("solve: %w", ErrNoInput)))
	assert.Equal(t, TransportUnknown, KindOf(errors.New("plain")))
}
