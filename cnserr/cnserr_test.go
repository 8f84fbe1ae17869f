package cnserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWalksChain(t *testing.T) {
	watchErr := New(KindWatch, "watch on %s refused", "net")
	err := Wrap(KindConnection, watchErr, "connect failed")

	assert.True(t, Is(err, KindConnection))
	assert.True(t, Is(err, KindWatch))
	assert.False(t, Is(err, KindIO))
	assert.Equal(t, KindConnection, KindOf(err))
	assert.Equal(t, "connect failed: watch on net refused", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, Is(wrapped, KindWatch))
	assert.False(t, Is(errors.New("plain"), KindWatch))
}

func TestWithLocation(t *testing.T) {
	err := WithLocation(New(KindCommand, "unknown command: foo"), "setup.cns", 3)
	assert.Equal(t, "setup.cns:3: unknown command: foo", err.Error())
	assert.True(t, Is(err, KindCommand))

	// the innermost script location wins
	outer := WithLocation(err, "main.cns", 10)
	assert.Equal(t, "setup.cns:3: unknown command: foo", outer.Error())

	plain := WithLocation(errors.New("disk full"), "x.cns", 1)
	assert.Equal(t, "x.cns:1: disk full", plain.Error())
	assert.Equal(t, "IOError", KindIO.String())
}
