package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an http.Client whose transport records a client
// span per outbound request.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// InstrumentHandler wraps an http.Handler so each inbound route records a
// server span named after the operation.
func InstrumentHandler(operation string, h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
