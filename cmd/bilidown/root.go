package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/italolelis/bilidown/internal/bilibili"
	"github.com/italolelis/bilidown/internal/cleanup"
	"github.com/italolelis/bilidown/internal/config"
	"github.com/italolelis/bilidown/internal/console"
	"github.com/italolelis/bilidown/internal/credential"
	"github.com/italolelis/bilidown/internal/downloader"
	"github.com/italolelis/bilidown/internal/ffmpeg"
	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/media"
	"github.com/italolelis/bilidown/internal/notifier"
	"github.com/italolelis/bilidown/internal/storage/sqlite"
	"github.com/italolelis/bilidown/internal/telemetry"
)

const (
	historyFile     = "history.db"
	notifierTimeout = 10 * time.Second
)

type rootFlags struct {
	url    string
	path   string
	cookie bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "bilidown",
		Short:         "Download a bilibili video and merge its streams into one mp4 file",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if flags.cookie {
				return setCookie(a.ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}

			if flags.url == "" {
				return errors.New("a video URL is required (-u/--url)")
			}

			return runDownload(a, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&flags.url, "url", "u", "", "URL or BV id of the video to download")
	cmd.Flags().StringVarP(&flags.path, "path", "p", "./", "directory the merged video is saved to")
	cmd.Flags().BoolVarP(&flags.cookie, "cookie", "c", false, "read the bilibili cookie from stdin and save it")

	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func setCookie(ctx context.Context, in io.Reader, out io.Writer) error {
	store, err := credential.DefaultStore()
	if err != nil {
		return err
	}

	fmt.Fprint(out, "请输入 BiliBili Cookie 信息: ")

	if err := store.Save(in); err != nil {
		return err
	}

	logctx.LoggerFromContext(ctx).Debug("cookie saved", "path", store.Path())
	fmt.Fprintln(out, "Cookie 设置完成！")

	return nil
}

func runDownload(a *app, flags rootFlags, out, progressOut io.Writer) error {
	ctx := a.ctx
	logger := a.logger
	cfg := a.cfg

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	store, err := credential.DefaultStore()
	if err != nil {
		return err
	}

	cookie, err := store.Load(ctx)
	if err != nil && !errors.Is(err, media.ErrCredentialUnavailable) {
		return err
	}

	if n, err := cleanup.SweepStaleTempDirs(ctx, cfg.TempDir, cfg.StaleTempAge); err != nil {
		logger.Warn("failed to sweep stale temp directories", "err", err)
	} else if n > 0 {
		logger.Info("removed stale temp directories", "count", n)
	}

	sinks := downloader.Sinks{downloader.NewLogSink(logger)}

	if cfg.ProgressBar {
		display := console.NewProgressDisplay(progressOut)
		defer func() {
			if err := display.Close(); err != nil {
				logger.Debug("failed to close progress display", "err", err)
			}
		}()

		sinks = append(sinks, display)
	}

	opts := downloader.Options{
		TempDir:           cfg.TempDir,
		ConcurrentStreams: cfg.ConcurrentStreams,
		PageTimeout:       cfg.PageTimeout,
		Progress:          sinks,
		Telemetry:         a.telemetry,
	}

	if cfg.HistoryEnabled {
		db, err := openHistory(cfg)
		if err != nil {
			logger.Warn("run history unavailable", "err", err)
		} else {
			defer db.Close()

			opts.History = sqlite.NewRunRepository(db)
		}
	}

	if cfg.DiscordWebhookURL != "" {
		opts.Notifier = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL, &http.Client{
			Transport: telemetry.NewHTTPTransport(http.DefaultTransport),
			Timeout:   notifierTimeout,
		})
	}

	d := downloader.NewDownloader(
		bilibili.NewClient(nil),
		ffmpeg.NewMuxer(cfg.FFmpegPath, cfg.MuxTimeout),
		opts,
	)

	res, err := d.Download(ctx, downloader.Request{
		Input:     flags.url,
		OutputDir: flags.path,
		Cookie:    cookie,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, res.OutputPath)

	return nil
}

func openHistory(cfg *config.Config) (*sql.DB, error) {
	path := cfg.HistoryDBPath
	if path == "" {
		dir, err := credential.ConfigDir()
		if err != nil {
			return nil, err
		}

		path = filepath.Join(dir, historyFile)
	}

	return sqlite.InitDB(path)
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent download runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.cfg.HistoryEnabled {
				return errors.New("run history is disabled (BILIDOWN_HISTORY_ENABLED=false)")
			}

			db, err := openHistory(a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := sqlite.NewRunRepository(db).RecentRuns(a.ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tTITLE\tRESULT")

			for _, run := range runs {
				result := run.OutputPath
				if run.Error != "" {
					result = run.Error
				}

				title := run.Title
				if title == "" {
					title = run.Input
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", humanize.Time(run.StartedAt), run.Status, title, result)
			}

			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}
