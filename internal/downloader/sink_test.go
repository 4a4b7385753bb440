package downloader_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/italolelis/bilidown/internal/downloader"
	"github.com/italolelis/bilidown/internal/downloader/progress"
	"github.com/italolelis/bilidown/internal/media"
	"github.com/stretchr/testify/assert"
)

func TestSinks_FanOut(t *testing.T) {
	a, b := newRecordingSink(), newRecordingSink()
	sinks := downloader.Sinks{a, nil, b}

	sinks.Progress(media.RoleAudio, progress.State{Total: 10, Received: 4})

	assert.Equal(t, []progress.State{{Total: 10, Received: 4}}, a.For(media.RoleAudio))
	assert.Equal(t, []progress.State{{Total: 10, Received: 4}}, b.For(media.RoleAudio))
}

func TestLogSink_Throttles(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := downloader.NewLogSink(logger)

	// 1000 one-byte updates on a 1000-byte stream cross 20 five-percent steps.
	for i := uint64(1); i <= 1000; i++ {
		sink.Progress(media.RoleVideo, progress.State{Total: 1000, Received: i})
	}

	lines := strings.Count(buf.String(), "download progress")
	assert.Equal(t, 20, lines)
	assert.Contains(t, buf.String(), "role=video")
	assert.Contains(t, buf.String(), "percent=100")
}

func TestLogSink_RolesAreIndependent(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := downloader.NewLogSink(logger)

	sink.Progress(media.RoleVideo, progress.State{Total: 100, Received: 100})
	sink.Progress(media.RoleAudio, progress.State{Total: 100, Received: 100})

	out := buf.String()
	assert.Contains(t, out, "role=video")
	assert.Contains(t, out, "role=audio")
}
