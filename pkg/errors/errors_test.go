package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrIndexNotReady, http.StatusConflict, "busy"), http.StatusConflict},
		{"not ready", fmt.Errorf("search: %w", ErrIndexNotReady), http.StatusBadRequest},
		{"crawl running", ErrCrawlInProgress, http.StatusBadRequest},
		{"outside sites", ErrPageOutsideSites, http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Newf(ErrIndexNotReady, http.StatusBadRequest, "site %s is not indexed", "x"))
	if got := Message(err); got != "site x is not indexed" {
		t.Errorf("Message() = %q", got)
	}
	if !Is(err, ErrIndexNotReady) {
		t.Error("expected ErrIndexNotReady in chain")
	}
	if got := Message(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("Message() = %q", got)
	}
}
