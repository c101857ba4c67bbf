package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/logger"
)

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"user", logger.UserID("u-17"), "user_id", "u-17"},
		{"environment", logger.Environment("staging"), "environment", "staging"},
		{"flag", logger.Flag("leaderboard"), "flag", "leaderboard"},
		{"phase", logger.PhaseID("beta"), "phase_id", "beta"},
		{"request", logger.RequestID("req-1"), "request_id", "req-1"},
		{"reasons", logger.Reasons([]string{"segment match: power"}), "reasons", []string{"segment match: power"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}
}

func TestEmptyAttrsAreDropped(t *testing.T) {
	t.Parallel()

	for name, attr := range map[string]slog.Attr{
		"nil error":  logger.Error(nil),
		"nil errors": logger.Errors(nil, nil),
		"no phase":   logger.PhaseID(""),
	} {
		assert.True(t, attr.Equal(slog.Attr{}), name)
	}
}

func TestErrorAttrs(t *testing.T) {
	t.Parallel()

	advance := errors.New("at last phase")
	store := errors.New("override store down")

	single := logger.Error(advance)
	assert.Equal(t, "error", single.Key)
	assert.Equal(t, advance, single.Value.Any())

	multi := logger.Errors(advance, nil, store)
	require.Equal(t, slog.KindGroup, multi.Value.Kind())
	group := multi.Value.Group()
	require.Len(t, group, 2)
	assert.Equal(t, store, group[1].Value.Any())
}

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("backends", slog.String("overrides", "redis"), slog.String("journal", "postgres"))
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	group := attr.Value.Group()
	require.Len(t, group, 2)
	assert.Equal(t, "journal", group[1].Key)
}
