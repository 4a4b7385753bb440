package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/bilidown/internal/downloader/progress"
	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/media"
)

const tempFilePerm = 0o600

// StreamOpener opens an authenticated media stream.
type StreamOpener interface {
	Open(ctx context.Context, req media.PageRequest) (io.ReadCloser, int64, error)
}

// StreamDownloader retrieves one stream into a local file.
type StreamDownloader struct {
	opener StreamOpener
}

func NewStreamDownloader(opener StreamOpener) *StreamDownloader {
	return &StreamDownloader{opener: opener}
}

// Download reads target.SourceURL fully into memory, reporting progress to sink after every
// chunk, then writes target.Path in a single write. On error target.Path is left as it was.
func (s *StreamDownloader) Download(ctx context.Context, target media.Target, cookie string, sink ProgressSink) (progress.State, error) {
	logger := logctx.LoggerFromContext(ctx).With("role", target.Role)
	operation := "download_" + target.Role.String()

	body, length, err := s.opener.Open(ctx, media.PageRequest{URL: target.SourceURL, Cookie: cookie})
	if err != nil {
		return progress.State{}, fmt.Errorf("failed to open %s stream: %w", target.Role, err)
	}
	defer body.Close()

	if length > 0 {
		logger.Info("downloading stream", "size", humanize.Bytes(uint64(length)))
	} else {
		logger.Info("downloading stream", "size", "unknown")
	}

	var buf bytes.Buffer
	if length > 0 {
		buf.Grow(int(length))
	}

	pr := progress.NewReader(body, uint64(length), func(st progress.State) {
		if sink != nil {
			sink.Progress(target.Role, st)
		}
	})

	if _, err := io.Copy(&buf, pr); err != nil {
		return pr.State(), &media.TransportError{Operation: operation, URL: target.SourceURL, Err: err}
	}

	if err := os.WriteFile(target.Path, buf.Bytes(), tempFilePerm); err != nil {
		return pr.State(), fmt.Errorf("failed to write %s stream: %w", target.Role, err)
	}

	logger.Info("stream downloaded", "size", humanize.Bytes(pr.State().Received))

	return pr.State(), nil
}
