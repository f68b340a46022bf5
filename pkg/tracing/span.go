// Package tracing times crawl and search operations as span trees carried in
// a context. A finished root span logs one record holding the duration of
// every child, which is enough to see where a slow search or site crawl
// spent its time.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/logger"
)

type contextKey struct{}

type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	parent   *Span
	children []*Span
	attrs    []any
	err      error
	logger   *slog.Logger
}

// StartSpan opens a root span. An empty traceID falls back to the request
// ID in ctx, then to a fresh UUID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = logger.RequestID(ctx)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	span := &Span{
		Name:    name,
		TraceID: traceID,
		Start:   time.Now(),
		logger:  logger.FromContext(ctx),
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the
// child is a detached root that is never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, Start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		child.parent = parent
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the duration. Calling it again has no effect.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Duration == 0 {
		s.Duration = time.Since(s.Start)
	}
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Fail records err on the span; the first error wins.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Breakdown renders the child durations as "name=12ms pages=3s".
func (s *Span) Breakdown() string {
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	var b strings.Builder
	for i, c := range children {
		if i > 0 {
			b.WriteByte(' ')
		}
		c.mu.Lock()
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Duration.Round(time.Millisecond).String())
		c.mu.Unlock()
	}
	return b.String()
}

// Log writes the root span as a single record. Failed spans log at warn.
func (s *Span) Log() {
	if s.parent != nil || s.logger == nil {
		return
	}
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
	}
	attrs = append(attrs, s.attrs...)
	err := s.err
	s.mu.Unlock()
	attrs = append(attrs, "breakdown", s.Breakdown())

	if err != nil {
		s.logger.Warn("span", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("span", attrs...)
}
