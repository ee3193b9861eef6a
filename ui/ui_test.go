//go:build !ui

package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrontendWithoutTag(t *testing.T) {
	f, err := Frontend()
	assert.NoError(t, err)
	assert.Nil(t, f)
}
