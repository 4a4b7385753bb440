package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/bilidown/internal/bilibili"
	"github.com/italolelis/bilidown/internal/cleanup"
	"github.com/italolelis/bilidown/internal/downloader/progress"
	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/media"
	"github.com/italolelis/bilidown/internal/notifier"
	"github.com/italolelis/bilidown/internal/storage"
	"github.com/italolelis/bilidown/internal/telemetry"
)

const (
	tempDirPattern = cleanup.TempDirPrefix + "*"
	// tempRefreshInterval keeps a live run's temp directory from looking stale to a sweep.
	tempRefreshInterval = time.Minute
)

// SiteClient fetches video pages and opens their media streams.
type SiteClient interface {
	Fetch(ctx context.Context, req media.PageRequest) (string, error)
	StreamOpener
}

// Muxer merges a video and an audio file into outputPath.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

type Options struct {
	// TempDir is the parent of the per-run temp directory. Empty means os.TempDir().
	TempDir string
	// ConcurrentStreams downloads video and audio at the same time.
	ConcurrentStreams bool
	// PageTimeout bounds the page fetch. Zero means no limit.
	PageTimeout time.Duration

	Progress  ProgressSink
	History   storage.RunWriteRepository
	Notifier  notifier.Notifier
	Telemetry *telemetry.Telemetry
}

type Downloader struct {
	client  SiteClient
	streams *StreamDownloader
	muxer   Muxer
	opts    Options
}

func NewDownloader(client SiteClient, muxer Muxer, opts Options) *Downloader {
	return &Downloader{
		client:  client,
		streams: NewStreamDownloader(client),
		muxer:   muxer,
		opts:    opts,
	}
}

// Request describes one run: a video URL or bare id, the directory the merged file goes to,
// and the cookie sent with every request.
type Request struct {
	Input     string
	OutputDir string
	Cookie    string
}

type Result struct {
	RunID      string
	Title      string
	OutputPath string
	VideoBytes uint64
	AudioBytes uint64
}

// Download runs the whole pipeline for req: check the output directory, fetch the page,
// locate the title and streams, reserve the output file, download both streams into a
// private temp directory and merge them. On failure no output file is left behind.
func (d *Downloader) Download(ctx context.Context, req Request) (Result, error) {
	ctx, runID := logctx.WithRunID(ctx)
	started := time.Now()

	res := Result{RunID: runID}

	err := d.opts.Telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		return d.run(ctx, req, &res)
	})

	d.report(ctx, req, res, err, started)

	return res, err
}

func (d *Downloader) run(ctx context.Context, req Request, res *Result) error {
	logger := logctx.LoggerFromContext(ctx)
	tel := d.opts.Telemetry

	if err := CheckOutputDir(req.OutputDir); err != nil {
		return err
	}

	pageURL := bilibili.NormalizeURL(req.Input)
	logger.Info("fetching video page", "url", pageURL)

	var page string

	err := tel.InstrumentStage(ctx, "fetch_page", func(ctx context.Context) error {
		if d.opts.PageTimeout > 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, d.opts.PageTimeout)
			defer cancel()
		}

		var err error
		page, err = d.client.Fetch(ctx, media.PageRequest{URL: pageURL, Cookie: req.Cookie})

		return err
	})
	if err != nil {
		return err
	}

	var ref media.Reference

	err = tel.InstrumentStage(ctx, "locate_media", func(context.Context) error {
		var err error
		ref, err = bilibili.Locate(page)

		return err
	})
	if err != nil {
		return err
	}

	res.Title = ref.Title
	logger.Info("located media", "title", ref.Title)

	outputPath, err := ReserveOutput(req.OutputDir, ref.Title)
	if err != nil {
		return err
	}

	committed := false

	defer func() {
		if committed {
			return
		}

		if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove output reservation", "path", outputPath, "err", err)
		}
	}()

	tmpDir, err := os.MkdirTemp(d.opts.TempDir, tempDirPattern)
	if err != nil {
		tel.RecordSystemError("downloader", "temp_dir")

		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("failed to remove temp directory", "dir", tmpDir, "err", err)
		}
	}()

	stopFresh := cleanup.KeepFresh(ctx, tmpDir, tempRefreshInterval)
	defer stopFresh()

	video := streamTarget(ref, media.RoleVideo, tmpDir)
	audio := streamTarget(ref, media.RoleAudio, tmpDir)

	err = tel.InstrumentStage(ctx, "download_streams", func(ctx context.Context) error {
		states, err := d.downloadStreams(ctx, req.Cookie, video, audio)
		res.VideoBytes = states[0].Received
		res.AudioBytes = states[1].Received

		return err
	})
	if err != nil {
		return err
	}

	err = tel.InstrumentStage(ctx, "mux", func(ctx context.Context) error {
		return d.muxer.Mux(ctx, video.Path, audio.Path, outputPath)
	})
	if err != nil {
		return err
	}

	committed = true
	res.OutputPath = outputPath

	logger.Info("download finished",
		"output", outputPath,
		"video", humanize.Bytes(res.VideoBytes),
		"audio", humanize.Bytes(res.AudioBytes))

	return nil
}

func streamTarget(ref media.Reference, role media.Role, dir string) media.Target {
	return media.Target{Role: role, SourceURL: ref.URL(role), Path: filepath.Join(dir, role.String()+".m4s")}
}

// downloadStreams fetches both targets, in order or concurrently depending on the options.
// Both must succeed; with concurrent streams the first failure cancels the other.
func (d *Downloader) downloadStreams(ctx context.Context, cookie string, targets ...media.Target) ([]progress.State, error) {
	states := make([]progress.State, len(targets))

	fetch := func(ctx context.Context, i int) error {
		st, err := d.streams.Download(ctx, targets[i], cookie, d.opts.Progress)
		states[i] = st
		d.opts.Telemetry.RecordStreamBytes(targets[i].Role.String(), int64(st.Received))

		return err
	}

	if !d.opts.ConcurrentStreams {
		for i := range targets {
			if err := fetch(ctx, i); err != nil {
				return states, err
			}
		}

		return states, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := range targets {
		i := i
		g.Go(func() error {
			return fetch(gctx, i)
		})
	}

	return states, g.Wait()
}

// report records the run in history and sends a notification. Neither can fail the run.
func (d *Downloader) report(ctx context.Context, req Request, res Result, runErr error, started time.Time) {
	logger := logctx.LoggerFromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	rec := storage.RunRecord{
		RunID:      res.RunID,
		Input:      req.Input,
		Title:      res.Title,
		OutputPath: res.OutputPath,
		Status:     storage.StatusCompleted,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}

	if runErr != nil {
		rec.Status = storage.StatusFailed
		rec.Error = runErr.Error()
	}

	if d.opts.History != nil {
		if err := d.opts.History.RecordRun(ctx, rec); err != nil {
			logger.Warn("failed to record run history", "err", err)
		}
	}

	if d.opts.Notifier != nil {
		if err := d.opts.Notifier.Notify(ctx, notificationText(req, res, runErr)); err != nil {
			logger.Warn("failed to send notification", "err", err)
		}
	}
}

func notificationText(req Request, res Result, runErr error) string {
	if runErr != nil {
		return fmt.Sprintf("Download of %s failed: %v", req.Input, runErr)
	}

	return fmt.Sprintf("Downloaded %q to %s (%s)", res.Title, res.OutputPath, humanize.Bytes(res.VideoBytes+res.AudioBytes))
}
