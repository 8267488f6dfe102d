package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"compile", "check", "scope", "test", "cache"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommandRejectsInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "--format", "yaml", "check", "--schema", fixtureSchema)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitInternal, GetExitCode(NewExitError(ExitInternal, "boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "wrapped", errors.New("cause"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	err := WrapExitError(ExitFailure, "reading", errors.New("cause"))
	assert.Equal(t, "reading: cause", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "cause")
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()
	quiet := newLogger(io.Discard, false)
	assert.False(t, quiet.Enabled(ctx, slog.LevelInfo))
	assert.True(t, quiet.Enabled(ctx, slog.LevelWarn))

	verbose := newLogger(io.Discard, true)
	assert.True(t, verbose.Enabled(ctx, slog.LevelDebug))
}

func TestRootOptionsLoggerDefaultsToDiscard(t *testing.T) {
	opts := &RootOptions{}
	assert.NotNil(t, opts.logger())
	assert.False(t, opts.logger().Enabled(context.Background(), slog.LevelError))
}
