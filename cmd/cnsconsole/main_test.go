package main

import (
	"errors"
	"testing"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/stretchr/testify/assert"
)

func TestOptionError(t *testing.T) {
	cause := errors.New("unrecognized argument --bogus")
	err := optionError(cause)

	assert.Equal(t, cnserr.KindOption, cnserr.KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "OptionError: unrecognized argument --bogus", err.Error())
}
