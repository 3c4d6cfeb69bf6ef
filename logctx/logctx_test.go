package logctx

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultLogger(zerolog.New(&buf))
	t.Cleanup(func() { SetDefaultLogger(zerolog.Nop()) })

	//nolint:staticcheck // nil context is part of the contract
	logger := FromContext(nil)
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestWithFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithStr(ctx, "db", "contacts")
	ctx = WithInt64(ctx, "raw_contact_id", 42)

	logger := FromContext(ctx)
	logger.Info().Msg("aggregated")

	out := buf.String()
	assert.Contains(t, out, `"db":"contacts"`)
	assert.Contains(t, out, `"raw_contact_id":42`)
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, false, false)
	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	l = newLogger(&buf, true, false)
	l.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
