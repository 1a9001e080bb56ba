package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.With("service", "coffeemaker").Info("purchase completed", "recipe", "Mocha", "change", 25)
	log.Debug("dropped below level")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "purchase completed", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "coffeemaker", fields["service"])
	assert.Equal(t, "Mocha", fields["recipe"])
	assert.EqualValues(t, 25, fields["change"])
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		log, err := New(mode)
		require.NoError(t, err)
		log.Info("ready", "mode", mode)
	}
}
