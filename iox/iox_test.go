package iox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error { c.closed = true; return errors.New("swallowed") }

func TestDiscardCloseInvokesClose(t *testing.T) {
	c := &closeRecorder{}
	DiscardClose(c)
	assert.True(t, c.closed)
}

func TestCloseFuncDefersClose(t *testing.T) {
	c := &closeRecorder{}
	fn := CloseFunc(c)
	assert.False(t, c.closed, "Close must wait for the returned func")
	fn()
	assert.True(t, c.closed)
}

func TestDiscardErrInvokesFn(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("swallowed")
	})
	assert.True(t, called)
}
