package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/bilidown/internal/logctx"
)

// LoggingTransport logs every outgoing request with a level chosen by the response status.
type LoggingTransport struct {
	Base http.RoundTripper
}

func (lt *LoggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)
	start := time.Now()

	base := lt.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(r)

	attrs := []any{
		"method", r.Method,
		"host", r.URL.Host,
		"path", r.URL.Path,
		"duration_ms", time.Since(start).Milliseconds(),
	}

	if err != nil {
		logger.ErrorContext(ctx, "http request failed", append(attrs, "err", err)...)

		return nil, err
	}

	attrs = append(attrs, "status", resp.StatusCode, "content_length", resp.ContentLength)

	switch {
	case resp.StatusCode >= 500:
		logger.ErrorContext(ctx, "http request completed", attrs...)
	case resp.StatusCode >= 400:
		logger.WarnContext(ctx, "http request completed", attrs...)
	default:
		logger.DebugContext(ctx, "http request completed", attrs...)
	}

	return resp, nil
}

// NewHTTPTransport returns base wrapped with request logging and otel client instrumentation.
func NewHTTPTransport(base http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(&LoggingTransport{Base: base})
}
