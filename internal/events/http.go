package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const httpSinkQueueSize = 256

// HTTPSink forwards events to a collector endpoint as JSON. A single worker
// drains a bounded queue so the evaluation path never waits on the network;
// when the queue is full the event is dropped, and delivery failures are
// logged at debug and dropped. Both are acceptable: telemetry carries no
// backpressure into evaluation.
type HTTPSink struct {
	url    string
	client *http.Client
	logger *zap.Logger

	queue   chan Event
	done    chan struct{}
	drained chan struct{}
	once    sync.Once
}

// NewHTTPSink creates a sink posting to the given collector URL and starts
// its delivery worker.
func NewHTTPSink(url string, logger *zap.Logger) *HTTPSink {
	s := &HTTPSink{
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		queue:   make(chan Event, httpSinkQueueSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go s.deliver()
	return s
}

// Record enqueues the event for delivery. The caller's context is not used:
// it typically dies with the request, while delivery outlives it under the
// client timeout. Events recorded after Flush, or while the queue is full,
// are dropped.
func (s *HTTPSink) Record(_ context.Context, ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Debug("event dropped, queue full", zap.String("name", ev.Name))
	}
}

func (s *HTTPSink) deliver() {
	defer close(s.drained)
	for {
		select {
		case ev := <-s.queue:
			s.send(ev)
		case <-s.done:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ev := <-s.queue:
					s.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *HTTPSink) send(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("marshal event", zap.String("name", ev.Name), zap.Error(err))
		return
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Debug("deliver event", zap.String("name", ev.Name), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Debug("event rejected",
			zap.String("name", ev.Name),
			zap.Int("status", resp.StatusCode))
	}
}

// Flush stops the worker after draining queued events and waits for it.
// Called on shutdown; later Record calls are no-ops.
func (s *HTTPSink) Flush() {
	s.once.Do(func() { close(s.done) })
	<-s.drained
}
