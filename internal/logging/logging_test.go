package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsUnknownLevelToInfo(t *testing.T) {
	log := New(Config{Level: "not-a-level"})
	var buf bytes.Buffer
	log = log.Output(&buf)

	log.Debug().Msg("should be filtered")
	assert.Empty(t, buf.String())

	log.Info().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewHonoursExplicitLevel(t *testing.T) {
	log := New(Config{Level: "debug"})
	var buf bytes.Buffer
	log = log.Output(&buf)

	log.Debug().Msg("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestNewEmitsJSONWithoutPretty(t *testing.T) {
	log := New(Config{Level: "info", Pretty: false})
	var buf bytes.Buffer
	log = log.Output(&buf)

	log.Info().Msg("json line")
	assert.Contains(t, buf.String(), `"message":"json line"`)
}

func TestFallbackNeverFailsBeforeConfig(t *testing.T) {
	log := Fallback()
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
