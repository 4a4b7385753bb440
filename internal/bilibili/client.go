package bilibili

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/media"
	"github.com/italolelis/bilidown/internal/telemetry"
)

const (
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	Referer   = "https://www.bilibili.com/"
)

// Client issues the authenticated GETs used for both the video page and its media streams.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a client using httpClient, or a logging, traced client when nil.
// No overall timeout is set on the default client; stream bodies can take minutes and
// callers bound requests through the context instead.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: telemetry.NewHTTPTransport(http.DefaultTransport)}
	}

	return &Client{httpClient: httpClient}
}

// Fetch returns the body of the page at req.URL as text.
func (c *Client) Fetch(ctx context.Context, req media.PageRequest) (string, error) {
	body, _, err := c.get(ctx, "fetch_page", req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	b, err := io.ReadAll(body)
	if err != nil {
		return "", &media.TransportError{Operation: "fetch_page", URL: req.URL, Err: err}
	}

	return string(b), nil
}

// Open starts a GET for a media stream and returns its body with the content length,
// or 0 when the length is unknown.
func (c *Client) Open(ctx context.Context, req media.PageRequest) (io.ReadCloser, int64, error) {
	return c.get(ctx, "open_stream", req)
}

func (c *Client) get(ctx context.Context, operation string, pr media.PageRequest) (io.ReadCloser, int64, error) {
	url, cookie := pr.URL, pr.Cookie

	logger := logctx.LoggerFromContext(ctx).With("operation", operation)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &media.TransportError{Operation: operation, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Referer", Referer)

	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &media.TransportError{Operation: operation, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()

		logger.Error("non-success response", "status", resp.StatusCode)

		return nil, 0, &media.TransportError{Operation: operation, URL: url, StatusCode: resp.StatusCode}
	}

	// Setting Accept-Encoding by hand disables the transport's transparent decompression.
	if resp.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()

			return nil, 0, &media.TransportError{Operation: operation, URL: url, Err: fmt.Errorf("invalid gzip body: %w", err)}
		}

		return &gzipBody{Reader: zr, body: resp.Body}, 0, nil
	}

	length := resp.ContentLength
	if length < 0 {
		length = 0
	}

	return resp.Body, length, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipBody) Close() error {
	g.Reader.Close()

	return g.body.Close()
}
