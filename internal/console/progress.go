// Package console renders download progress on a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/italolelis/bilidown/internal/downloader/progress"
	"github.com/italolelis/bilidown/internal/media"
)

// ProgressDisplay draws a single byte progress bar for all expected stream roles, so
// concurrent streams share one terminal line. It is safe for concurrent use.
type ProgressDisplay struct {
	out   io.Writer
	roles []media.Role

	mu     sync.Mutex
	states map[media.Role]progress.State
	bar    *progressbar.ProgressBar
	limit  int64
	// quiet suppresses the completion newline of a bar that is being replaced.
	quiet bool
}

// NewProgressDisplay returns a display for roles, video and audio when none are given.
func NewProgressDisplay(out io.Writer, roles ...media.Role) *ProgressDisplay {
	if len(roles) == 0 {
		roles = []media.Role{media.RoleVideo, media.RoleAudio}
	}

	return &ProgressDisplay{
		out:    out,
		roles:  roles,
		states: make(map[media.Role]progress.State, len(roles)),
	}
}

func (p *ProgressDisplay) Progress(role media.Role, st progress.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states[role] = st

	// A new total rebuilds the bar so its maximum never trails the bytes already counted.
	if limit := p.aggregateLimit(); p.bar == nil || limit != p.limit {
		if p.bar != nil {
			p.quiet = true
			_ = p.bar.Finish()
			_ = p.bar.Clear()
			p.quiet = false
		}

		p.bar = p.newBar(limit)
		p.limit = limit
	}

	p.bar.Describe(p.describe())
	_ = p.bar.Set64(p.received())
}

// Close finishes the bar when a total was unknown and it never completed on its own.
func (p *ProgressDisplay) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.bar.IsFinished() {
		return nil
	}

	if err := p.bar.Finish(); err != nil {
		return fmt.Errorf("failed to finish progress: %w", err)
	}

	return nil
}

// aggregateLimit sums the known totals. A role without a known total adds one byte so the
// bar cannot complete before that role has reported. With no known total at all it is -1.
func (p *ProgressDisplay) aggregateLimit() int64 {
	var sum, pending int64

	for _, role := range p.roles {
		if total := p.states[role].Total; total > 0 {
			sum += int64(total)
		} else {
			pending++
		}
	}

	if sum == 0 {
		return -1
	}

	return sum + pending
}

func (p *ProgressDisplay) received() int64 {
	var n int64
	for _, role := range p.roles {
		n += int64(p.states[role].Received)
	}

	return n
}

func (p *ProgressDisplay) describe() string {
	parts := make([]string, 0, len(p.roles))

	for _, role := range p.roles {
		st, ok := p.states[role]

		switch {
		case !ok:
			parts = append(parts, fmt.Sprintf("%s   -", role))
		case st.Total == 0:
			parts = append(parts, fmt.Sprintf("%s   ?", role))
		default:
			parts = append(parts, fmt.Sprintf("%s %3.0f%%", role, st.Percent()))
		}
	}

	return strings.Join(parts, " | ")
}

func (p *ProgressDisplay) newBar(limit int64) *progressbar.ProgressBar {
	out := p.out

	return progressbar.NewOptions64(limit,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(p.describe()),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			if !p.quiet {
				fmt.Fprintln(out)
			}
		}),
	)
}
