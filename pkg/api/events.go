package api

import (
	"encoding/json"
	"net/http"

	"github.com/roostlabs/roost/pkg/events"
)

// handleEvents streams controller events as newline-delimited JSON until
// the client disconnects. Optional ?namespace= and ?workload= filters
// narrow the stream to one workload's events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "event streaming is not enabled"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	namespace := r.URL.Query().Get("namespace")
	workload := r.URL.Query().Get("workload")

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case e, open := <-sub:
			if !open {
				return
			}
			if !eventMatches(e, namespace, workload) {
				continue
			}
			if err := enc.Encode(e); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func eventMatches(e *events.Event, namespace, workload string) bool {
	if namespace != "" && e.Metadata["namespace"] != namespace {
		return false
	}
	if workload != "" && e.Metadata["workload"] != workload {
		return false
	}
	return true
}
