package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger, err := New("erisim", "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger, err = New("erisim", "warn", "console")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("erisim", "loud", "json")
	assert.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New("erisim", "info", "xml")
	assert.Error(t, err)
}
