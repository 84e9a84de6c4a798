// Package sse relays planner events to a client as server-sent events.
//
// Each event is one self-delimited record:
//
//	data: {"chunk": "..."}
//	data: {"error": "..."}
//	data: {"done": true}
//
// followed by a blank line. Records are flushed one at a time.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

type record struct {
	Chunk *string `json:"chunk,omitempty"`
	Error *string `json:"error,omitempty"`
	Done  bool    `json:"done,omitempty"`
}

// Encode renders one framed record.
func Encode(ev domain.StreamEvent) ([]byte, error) {
	var rec record
	switch ev.Kind {
	case domain.EventChunk:
		rec.Chunk = &ev.Text
	case domain.EventError:
		rec.Error = &ev.Text
	case domain.EventDone:
		rec.Done = true
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out, nil
}

// SetHeaders prepares w for an event stream.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Pump writes events to w in arrival order and flushes after each record
// when w supports it. It returns when the sequence ends, after a terminal
// event, when ctx is done, or on the first write error. Returning early
// stops the producer.
func Pump(ctx context.Context, w io.Writer, events iter.Seq[domain.StreamEvent]) error {
	flusher, _ := w.(http.Flusher)
	log := observability.LoggerFromContext(ctx)

	for ev := range events {
		if err := ctx.Err(); err != nil {
			log.Info("client went away, dropping remaining events", "error", err)
			return err
		}

		frame, err := Encode(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			log.Info("stream write failed", "error", err)
			return fmt.Errorf("write event: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		observability.StreamEvents.WithLabelValues(string(ev.Kind)).Inc()

		if ev.Terminal() {
			return nil
		}
	}
	return nil
}
