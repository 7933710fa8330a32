package serr_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"complgate/serr"
)

func TestErrno(t *testing.T) {
	assert.Equal(t, syscall.EINTR, serr.ToErrno(serr.NewErr(serr.TErrIntr, "gate")))
	assert.Equal(t, syscall.Errno(0), serr.ToErrno(nil))
	assert.Equal(t, syscall.EBADF, serr.ToErrno(serr.NewErr(serr.TErrUnknownHandle, 7)))
	assert.Equal(t, syscall.EIO, serr.ToErrno(serr.NewErrError(errors.New("boom"))))
}

func TestIsErrCode(t *testing.T) {
	err := serr.NewErr(serr.TErrIntr, "completion")
	assert.True(t, err.IsErrIntr())
	wrapped := fmt.Errorf("read: %w", err)
	assert.True(t, serr.IsErrIntr(wrapped))
	assert.True(t, serr.IsErrCode(wrapped, serr.TErrIntr))
	assert.False(t, serr.IsErrCode(wrapped, serr.TErrClosed))
	assert.False(t, serr.IsErrIntr(errors.New("interrupted")))
	assert.Contains(t, err.Error(), "interrupted")
	assert.Contains(t, err.Error(), "completion")
}

func TestNewErrError(t *testing.T) {
	e := serr.NewErr(serr.TErrExists, "x")
	assert.Equal(t, e, serr.NewErrError(fmt.Errorf("wrap: %w", e)))
	base := errors.New("boom")
	e1 := serr.NewErrError(base)
	assert.Equal(t, serr.TErrError, e1.Code())
	assert.True(t, errors.Is(e1, base))
}
