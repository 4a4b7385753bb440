package downloader

import (
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/bilidown/internal/downloader/progress"
	"github.com/italolelis/bilidown/internal/media"
)

// ProgressSink receives progress updates keyed by stream role. Implementations must be
// fast and safe for concurrent use; they cannot slow down or stop a download.
type ProgressSink interface {
	Progress(role media.Role, state progress.State)
}

// Sinks fans an update out to several sinks.
type Sinks []ProgressSink

func (s Sinks) Progress(role media.Role, state progress.State) {
	for _, sink := range s {
		if sink != nil {
			sink.Progress(role, state)
		}
	}
}

// LogSink logs progress at debug level every reportInterval bytes, on every 5% step when the
// total is known, and on completion.
type LogSink struct {
	logger         *slog.Logger
	reportInterval uint64

	mu   sync.Mutex
	last map[media.Role]progress.State
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{
		logger:         logger,
		reportInterval: 100 * 1024 * 1024, // 100MB
		last:           make(map[media.Role]progress.State),
	}
}

func (l *LogSink) Progress(role media.Role, st progress.State) {
	l.mu.Lock()
	prev := l.last[role]
	report := st.Received < prev.Received ||
		st.Received-prev.Received >= l.reportInterval ||
		(st.Total > 0 && step(st) != step(prev)) ||
		st.Done()

	if report {
		l.last[role] = st
	}
	l.mu.Unlock()

	if !report {
		return
	}

	if st.Total > 0 {
		l.logger.Debug("download progress",
			"role", role,
			"downloaded", humanize.Bytes(st.Received),
			"total", humanize.Bytes(st.Total),
			"percent", humanize.FtoaWithDigits(st.Percent(), 2))
	} else {
		l.logger.Debug("download progress", "role", role, "downloaded", humanize.Bytes(st.Received))
	}
}

func step(st progress.State) int {
	if st.Total == 0 {
		return 0
	}

	return int(st.Received * 20 / st.Total)
}
