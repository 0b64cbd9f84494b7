package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct {
	slog.Handler
	err error
}

func (h failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }

func textHandler(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanout_DeliversToEveryHandler(t *testing.T) {
	var a, b bytes.Buffer
	slog.New(NewFanout(textHandler(&a, slog.LevelInfo), nil, textHandler(&b, slog.LevelInfo))).Info("lap complete")

	assert.Contains(t, a.String(), "lap complete")
	assert.Contains(t, b.String(), "lap complete")
}

func TestFanout_Enabled(t *testing.T) {
	ctx := context.Background()
	info := textHandler(&bytes.Buffer{}, slog.LevelInfo)
	debug := textHandler(&bytes.Buffer{}, slog.LevelDebug)

	assert.False(t, NewFanout().Enabled(ctx, slog.LevelError))
	assert.False(t, NewFanout(info).Enabled(ctx, slog.LevelDebug))
	assert.True(t, NewFanout(info, debug).Enabled(ctx, slog.LevelDebug))
}

func TestFanout_SkipsHandlersBelowLevel(t *testing.T) {
	var info, debug bytes.Buffer
	slog.New(NewFanout(textHandler(&info, slog.LevelInfo), textHandler(&debug, slog.LevelDebug))).Debug("tick")

	assert.Empty(t, info.String())
	assert.Contains(t, debug.String(), "tick")
}

func TestFanout_JoinsErrorsAndKeepsDelivering(t *testing.T) {
	var buf bytes.Buffer
	errA, errB := errors.New("udp down"), errors.New("disk full")
	f := NewFanout(failingHandler{err: errA}, textHandler(&buf, slog.LevelInfo), failingHandler{err: errB})

	err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0))

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, buf.String(), "still written")
}

func TestFanout_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanout(textHandler(&buf, slog.LevelInfo))
	assert.Same(t, f, f.WithGroup(""))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "hub")}).WithGroup("kart")).Info("spawned", "id", "v1")

	assert.Contains(t, buf.String(), "component=hub")
	assert.Contains(t, buf.String(), "kart.id=v1")
}

func TestContextHandler_ResolvesPerRecord(t *testing.T) {
	var buf bytes.Buffer
	var attrs []slog.Attr
	logger := slog.New(&contextHandler{
		next:     textHandler(&buf, slog.LevelInfo),
		provider: func() []slog.Attr { return attrs },
	})

	logger.Info("before session")
	attrs = []slog.Attr{slog.String("sessionId", "s-1")}
	logger.With("vehicle", "v1").Info("during session")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.NotContains(t, string(lines[0]), "sessionId")
	assert.Contains(t, string(lines[1]), "vehicle=v1")
	assert.Contains(t, string(lines[1]), "sessionId=s-1")
}
