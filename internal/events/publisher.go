package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
)

const maxBatch = 100

// Sink is implemented by *kafka.Producer.
type Sink interface {
	Publish(ctx context.Context, messages ...kafka.Message) error
}

// Publisher buffers events and forwards them to the sink from a single
// goroutine. Events are dropped with a warning when the buffer is full.
type Publisher struct {
	sink    Sink
	eventCh chan Event
	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
	logger  *slog.Logger
}

func NewPublisher(sink Sink, bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Publisher{
		sink:    sink,
		eventCh: make(chan Event, bufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "event-publisher"),
	}
}

// Start launches the forwarding loop. Cancelling ctx makes the loop flush
// what is buffered and exit.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	go func() {
		defer close(p.done)
		for {
			select {
			case e, ok := <-p.eventCh:
				if !ok {
					return
				}
				p.publish(ctx, p.collect(e))
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	}()
	p.logger.Info("event publisher started", "buffer_size", cap(p.eventCh))
}

func (p *Publisher) Track(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.eventCh <- e:
	default:
		metrics.Default.EventsTotal.WithLabelValues("dropped").Inc()
		p.logger.Warn("event dropped (buffer full)", "type", e.Type, "site", e.Site)
	}
}

// Close stops accepting events and waits for buffered ones to be sent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.eventCh)
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}

// collect gathers e and whatever else is already buffered, up to maxBatch.
func (p *Publisher) collect(e Event) []Event {
	batch := []Event{e}
	for len(batch) < maxBatch {
		select {
		case next, ok := <-p.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, next)
		default:
			return batch
		}
	}
	return batch
}

func (p *Publisher) drain() {
	for {
		select {
		case e, ok := <-p.eventCh:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.publish(ctx, p.collect(e))
			cancel()
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, batch []Event) {
	messages := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		key := e.Site
		if key == "" {
			key = e.RunID
		}
		messages = append(messages, kafka.Message{Key: key, Type: string(e.Type), Value: e})
	}
	if err := p.sink.Publish(ctx, messages...); err != nil {
		metrics.Default.EventsTotal.WithLabelValues("failed").Add(float64(len(batch)))
		p.logger.Error("failed to publish events", "count", len(batch), "error", err)
		return
	}
	metrics.Default.EventsTotal.WithLabelValues("published").Add(float64(len(batch)))
}
