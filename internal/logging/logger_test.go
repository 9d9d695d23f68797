package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", false)

	log.Info().Str("roll", "21CS07").Msg("lookup")

	assert.Contains(t, buf.String(), `"roll":"21CS07"`)
	assert.Contains(t, buf.String(), `"message":"lookup"`)
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", false)

	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "loud", false)

	log.Debug().Msg("debug")
	assert.Empty(t, buf.String())
	log.Info().Msg("info")
	assert.NotEmpty(t, buf.String())
}
