package stream

import (
	"encoding/json"
	"net/http"

	"github.com/eduassist/tutorbridge/rag"
)

// WriteSSE drains events and frames each as a Server-Sent-Event-style
// line, `data: <json>\n\n`. It owns back-pressure: it only ever reads
// from events when the underlying connection has accepted the previous
// frame, so a slow caller blocks the producer all the way back to the
// agent's generator. It owns cancellation: when ctx is done (the caller
// disconnected), it stops draining and returns without waiting for
// events to close; in-flight retrieval/generation is left to notice
// ctx.Done() on its own and wind down.
func WriteSSE(w http.ResponseWriter, ctxDone <-chan struct{}, events <-chan Event) {
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctxDone:
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if !writeFrame(w, ev) {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		rag.GlobalLogger.Error("failed to marshal stream event", "error", err)
		return true
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := w.Write(data); err != nil {
		return false
	}
	_, err = w.Write([]byte("\n\n"))
	return err == nil
}
