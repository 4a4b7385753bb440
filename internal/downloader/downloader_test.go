package downloader_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/bilidown/internal/downloader"
	"github.com/italolelis/bilidown/internal/media"
	"github.com/italolelis/bilidown/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	videoURL = "https://upos.example.com/video-80.m4s"
	audioURL = "https://upos.example.com/audio-30280.m4s"

	samplePage = `<!DOCTYPE html><html><head>` +
		`<title data-vue-meta="true">示例视频_哔哩哔哩_bilibili</title></head><body>` +
		`<script>window.__playinfo__={"data":{"dash":{` +
		`"video":[{"id":80,"baseUrl":"` + videoURL + `","bandwidth":1}],` +
		`"audio":[{"id":30280,"baseUrl":"` + audioURL + `","bandwidth":1}]}}}</script>` +
		`</body></html>`
)

var (
	videoData = bytes.Repeat([]byte("V"), 4096)
	audioData = bytes.Repeat([]byte("A"), 1024)
)

type mockSite struct {
	mu        sync.Mutex
	fetched   []string
	opened    []string
	FetchFunc func(ctx context.Context, url, cookie string) (string, error)
	OpenFunc  func(ctx context.Context, url, cookie string) (io.ReadCloser, int64, error)
}

func (m *mockSite) Fetch(ctx context.Context, req media.PageRequest) (string, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, req.URL)
	m.mu.Unlock()

	return m.FetchFunc(ctx, req.URL, req.Cookie)
}

func (m *mockSite) Open(ctx context.Context, req media.PageRequest) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	m.opened = append(m.opened, req.URL)
	m.mu.Unlock()

	return m.OpenFunc(ctx, req.URL, req.Cookie)
}

func newSite() *mockSite {
	return &mockSite{
		FetchFunc: func(context.Context, string, string) (string, error) {
			return samplePage, nil
		},
		OpenFunc: func(_ context.Context, url, _ string) (io.ReadCloser, int64, error) {
			switch url {
			case videoURL:
				return io.NopCloser(bytes.NewReader(videoData)), int64(len(videoData)), nil
			case audioURL:
				return io.NopCloser(bytes.NewReader(audioData)), int64(len(audioData)), nil
			}

			return nil, 0, &media.TransportError{Operation: "open_stream", URL: url, StatusCode: 404}
		},
	}
}

type muxCall struct {
	video, audio, output string
}

type mockMuxer struct {
	calls   []muxCall
	MuxFunc func(ctx context.Context, videoPath, audioPath, outputPath string) error
}

func (m *mockMuxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	m.calls = append(m.calls, muxCall{videoPath, audioPath, outputPath})

	if m.MuxFunc != nil {
		return m.MuxFunc(ctx, videoPath, audioPath, outputPath)
	}

	return os.WriteFile(outputPath, []byte("merged"), 0o644)
}

type mockHistory struct {
	records []storage.RunRecord
}

func (m *mockHistory) RecordRun(_ context.Context, rec storage.RunRecord) error {
	m.records = append(m.records, rec)

	return nil
}

type mockNotifier struct {
	messages []string
	err      error
}

func (m *mockNotifier) Notify(_ context.Context, content string) error {
	m.messages = append(m.messages, content)

	return m.err
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestDownloader_EndToEnd(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		name := "sequential"
		if concurrent {
			name = "concurrent"
		}

		t.Run(name, func(t *testing.T) {
			outDir, tempRoot := t.TempDir(), t.TempDir()
			site := newSite()
			sink := newRecordingSink()
			history := &mockHistory{}
			notifier := &mockNotifier{}

			muxer := &mockMuxer{}
			muxer.MuxFunc = func(_ context.Context, videoPath, audioPath, outputPath string) error {
				got, err := os.ReadFile(videoPath)
				require.NoError(t, err)
				assert.Equal(t, videoData, got)

				got, err = os.ReadFile(audioPath)
				require.NoError(t, err)
				assert.Equal(t, audioData, got)

				return os.WriteFile(outputPath, []byte("merged"), 0o644)
			}

			d := downloader.NewDownloader(site, muxer, downloader.Options{
				TempDir:           tempRoot,
				ConcurrentStreams: concurrent,
				Progress:          sink,
				History:           history,
				Notifier:          notifier,
			})

			res, err := d.Download(context.Background(), downloader.Request{
				Input:     "BV1xx411c7mD",
				OutputDir: outDir,
				Cookie:    "SESSDATA=abc",
			})
			require.NoError(t, err)

			want := filepath.Join(outDir, "示例视频.mp4")
			assert.Equal(t, want, res.OutputPath)
			assert.Equal(t, "示例视频", res.Title)
			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, uint64(len(videoData)), res.VideoBytes)
			assert.Equal(t, uint64(len(audioData)), res.AudioBytes)

			data, err := os.ReadFile(want)
			require.NoError(t, err)
			assert.Equal(t, "merged", string(data))

			assert.Equal(t, []string{"https://www.bilibili.com/video/BV1xx411c7mD"}, site.fetched)
			assert.ElementsMatch(t, []string{videoURL, audioURL}, site.opened)

			require.Len(t, muxer.calls, 1)
			call := muxer.calls[0]
			assert.Equal(t, want, call.output)
			assert.Equal(t, "video.m4s", filepath.Base(call.video))
			assert.Equal(t, "audio.m4s", filepath.Base(call.audio))
			assert.Equal(t, filepath.Dir(call.video), filepath.Dir(call.audio))
			assert.Equal(t, tempRoot, filepath.Dir(filepath.Dir(call.video)))

			assert.Empty(t, listDir(t, tempRoot), "temp directory must be removed")
			assert.Equal(t, []string{"示例视频.mp4"}, listDir(t, outDir))

			videoUpdates := sink.For(media.RoleVideo)
			require.NotEmpty(t, videoUpdates)
			assert.Equal(t, uint64(len(videoData)), videoUpdates[len(videoUpdates)-1].Received)
			require.NotEmpty(t, sink.For(media.RoleAudio))

			require.Len(t, history.records, 1)
			assert.Equal(t, storage.StatusCompleted, history.records[0].Status)
			assert.Equal(t, res.RunID, history.records[0].RunID)
			assert.Equal(t, want, history.records[0].OutputPath)

			require.Len(t, notifier.messages, 1)
			assert.Contains(t, notifier.messages[0], "示例视频")
		})
	}
}

func TestDownloader_ExistingFileGetsSuffix(t *testing.T) {
	outDir := t.TempDir()
	existing := filepath.Join(outDir, "示例视频.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	d := downloader.NewDownloader(newSite(), &mockMuxer{}, downloader.Options{TempDir: t.TempDir()})

	res, err := d.Download(context.Background(), downloader.Request{Input: "https://www.bilibili.com/video/BV1", OutputDir: outDir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "示例视频-1.mp4"), res.OutputPath)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestDownloader_InvalidOutputDirBeforeNetwork(t *testing.T) {
	site := newSite()
	muxer := &mockMuxer{}
	history := &mockHistory{}

	d := downloader.NewDownloader(site, muxer, downloader.Options{TempDir: t.TempDir(), History: history})

	_, err := d.Download(context.Background(), downloader.Request{
		Input:     "BV1",
		OutputDir: filepath.Join(t.TempDir(), "missing"),
	})

	var pathErr *media.PathError
	require.True(t, errors.As(err, &pathErr))
	assert.Empty(t, site.fetched)
	assert.Empty(t, site.opened)
	assert.Empty(t, muxer.calls)

	require.Len(t, history.records, 1)
	assert.Equal(t, storage.StatusFailed, history.records[0].Status)
	assert.NotEmpty(t, history.records[0].Error)
}

func TestDownloader_Failures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(site *mockSite, muxer *mockMuxer)
		check      func(t *testing.T, err error)
		wantOpened int
		wantMuxes  int
	}{
		{
			name: "page fetch fails",
			setup: func(site *mockSite, _ *mockMuxer) {
				site.FetchFunc = func(context.Context, string, string) (string, error) {
					return "", &media.TransportError{Operation: "fetch_page", StatusCode: 412}
				}
			},
			check: func(t *testing.T, err error) {
				var transportErr *media.TransportError
				require.True(t, errors.As(err, &transportErr))
				assert.Equal(t, 412, transportErr.StatusCode)
			},
		},
		{
			name: "title missing",
			setup: func(site *mockSite, _ *mockMuxer) {
				site.FetchFunc = func(context.Context, string, string) (string, error) {
					return `<html>"video":[{"baseUrl":"x"}],"audio":[{"baseUrl":"y"}]</html>`, nil
				}
			},
			check: func(t *testing.T, err error) {
				var extractionErr *media.ExtractionError
				require.True(t, errors.As(err, &extractionErr))
				assert.Equal(t, "title", extractionErr.Field)
			},
		},
		{
			name: "audio stream fails",
			setup: func(site *mockSite, _ *mockMuxer) {
				open := site.OpenFunc
				site.OpenFunc = func(ctx context.Context, url, cookie string) (io.ReadCloser, int64, error) {
					if url == audioURL {
						return nil, 0, &media.TransportError{Operation: "open_stream", URL: url, StatusCode: 403}
					}

					return open(ctx, url, cookie)
				}
			},
			check: func(t *testing.T, err error) {
				var transportErr *media.TransportError
				require.True(t, errors.As(err, &transportErr))
				assert.Equal(t, 403, transportErr.StatusCode)
			},
			wantOpened: 2,
		},
		{
			name: "merge fails",
			setup: func(_ *mockSite, muxer *mockMuxer) {
				muxer.MuxFunc = func(context.Context, string, string, string) error {
					return &media.MergeError{Stderr: "Invalid data found when processing input"}
				}
			},
			check: func(t *testing.T, err error) {
				var mergeErr *media.MergeError
				require.True(t, errors.As(err, &mergeErr))
				assert.Contains(t, mergeErr.Stderr, "Invalid data")
			},
			wantOpened: 2,
			wantMuxes:  1,
		},
	}

	for _, concurrent := range []bool{false, true} {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/concurrent=%t", tt.name, concurrent), func(t *testing.T) {
				outDir, tempRoot := t.TempDir(), t.TempDir()
				site, muxer := newSite(), &mockMuxer{}
				notifier := &mockNotifier{err: errors.New("webhook down")}
				tt.setup(site, muxer)

				d := downloader.NewDownloader(site, muxer, downloader.Options{
					TempDir:           tempRoot,
					ConcurrentStreams: concurrent,
					Notifier:          notifier,
				})

				res, err := d.Download(context.Background(), downloader.Request{Input: "BV1", OutputDir: outDir})
				require.Error(t, err)
				tt.check(t, err)

				assert.Empty(t, res.OutputPath)
				assert.Len(t, site.opened, tt.wantOpened)
				assert.Len(t, muxer.calls, tt.wantMuxes)
				assert.Empty(t, listDir(t, outDir), "no output may be left behind")
				assert.Empty(t, listDir(t, tempRoot), "temp directory must be removed")

				require.Len(t, notifier.messages, 1)
				assert.Contains(t, notifier.messages[0], "failed")
			})
		}
	}
}

func TestDownloader_ConcurrentFailureCancelsOtherStream(t *testing.T) {
	outDir, tempRoot := t.TempDir(), t.TempDir()
	site, muxer := newSite(), &mockMuxer{}

	audioCancelled := make(chan struct{})

	site.OpenFunc = func(ctx context.Context, url, _ string) (io.ReadCloser, int64, error) {
		if url == videoURL {
			return nil, 0, &media.TransportError{Operation: "open_stream", URL: url, StatusCode: 403}
		}

		select {
		case <-ctx.Done():
			close(audioCancelled)

			return nil, 0, &media.TransportError{Operation: "open_stream", URL: url, Err: ctx.Err()}
		case <-time.After(5 * time.Second):
			return nil, 0, errors.New("audio download was not cancelled")
		}
	}

	d := downloader.NewDownloader(site, muxer, downloader.Options{TempDir: tempRoot, ConcurrentStreams: true})

	_, err := d.Download(context.Background(), downloader.Request{Input: "BV1", OutputDir: outDir})

	var transportErr *media.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 403, transportErr.StatusCode)
	assert.Equal(t, videoURL, transportErr.URL)

	select {
	case <-audioCancelled:
	default:
		t.Fatal("audio stream did not observe cancellation")
	}

	assert.Empty(t, muxer.calls)
	assert.Empty(t, listDir(t, outDir))
	assert.Empty(t, listDir(t, tempRoot))
}

func TestDownloader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	site := newSite()
	site.FetchFunc = func(ctx context.Context, _, _ string) (string, error) {
		cancel()

		return "", &media.TransportError{Operation: "fetch_page", Err: ctx.Err()}
	}

	outDir := t.TempDir()
	d := downloader.NewDownloader(site, &mockMuxer{}, downloader.Options{TempDir: t.TempDir()})

	_, err := d.Download(ctx, downloader.Request{Input: "BV1", OutputDir: outDir})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, outDir))
}
