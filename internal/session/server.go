// SPDX-License-Identifier: MIT
//
// Package session keeps the parameter model consistent between the device
// and its clients. Both sides run a single reactor goroutine that owns every
// model mutation; there are no sequence numbers, the last change a side
// observes wins.
package session

import (
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"bbbtune/internal/metrics"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var serverLog = log.Named("Session")

// ChangeFunc observes every applied parameter change.
type ChangeFunc func(key string, p params.Param)

type postRequest struct {
	key   string
	value float64
	reply chan error
}

// Server is the authoritative side: it serves the snapshot, accepts changes
// from peers and HTTP, and rebroadcasts them.
type Server struct {
	store     *params.Store
	hub       *transport.Hub
	metrics   *metrics.Metrics
	observers []ChangeFunc
	posts     chan postRequest
}

// NewServer wires a server around store and hub. m may be nil.
func NewServer(store *params.Store, hub *transport.Hub, m *metrics.Metrics) *Server {
	s := &Server{
		store:   store,
		hub:     hub,
		metrics: m,
		posts:   make(chan postRequest),
	}
	hub.SetObserver(m.SetPeers)
	for _, e := range store.Load().Entries() {
		m.SetParamValue(e.Key, e.Value)
	}
	return s
}

// OnChange registers fn. Call before Run.
func (s *Server) OnChange(fn ChangeFunc) {
	s.observers = append(s.observers, fn)
}

// Store returns the parameter store the server publishes.
func (s *Server) Store() *params.Store { return s.store }

// Handler routes /params, /ws and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /params", s.handleGetParams)
	mux.HandleFunc("POST /params", s.handlePostParams)
	mux.Handle("GET /ws", s.hub)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Run is the server reactor. It returns when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	serverLog.Infof("reactor started with %d parameters", s.store.Load().Len())
	for {
		select {
		case in := <-s.hub.Incoming():
			s.handlePeerEvent(in)
		case req := <-s.posts:
			req.reply <- s.applyRaw(req.key, req.value)
		case <-ctx.Done():
			serverLog.Infof("reactor stopped")
			return ctx.Err()
		}
	}
}

func (s *Server) handlePeerEvent(in transport.Incoming) {
	if in.Event.Name != transport.EventParamChange {
		serverLog.Debugf("ignoring %q from peer %s", in.Event.Name, in.Origin)
		return
	}
	var change transport.ParamChange
	if err := in.Event.Decode(&change); err != nil {
		serverLog.Warnf("peer %s: %v", in.Origin, err)
		s.metrics.RecordParamChange("peer", false)
		return
	}

	m, err := s.store.Update(func(m *params.Model) (*params.Model, error) {
		return m.SetFromPercent(change.Key, change.Value)
	})
	if err != nil {
		serverLog.Warnf("rejected change from peer %s: %v", in.Origin, err)
		s.metrics.RecordParamChange("peer", false)
		return
	}
	s.metrics.RecordParamChange("peer", true)
	s.notify(m, change.Key)

	// Everyone but the sender; the sender already applied it.
	if err := s.hub.BroadcastFrom(in.Origin, in.Event); err != nil {
		serverLog.Warnf("rebroadcast %s: %v", change.Key, err)
	}
}

func (s *Server) applyRaw(key string, value float64) error {
	m, err := s.store.Update(func(m *params.Model) (*params.Model, error) {
		return m.Set(key, value)
	})
	if err != nil {
		s.metrics.RecordParamChange("http", false)
		return err
	}
	s.metrics.RecordParamChange("http", true)
	s.notify(m, key)

	percent, _ := m.PercentOf(key)
	ev, err := transport.NewEvent(transport.EventParamChange, transport.ParamChange{Key: key, Value: percent})
	if err != nil {
		return err
	}
	if err := s.hub.Send(ev); err != nil {
		serverLog.Warnf("broadcast %s: %v", key, err)
	}
	return nil
}

func (s *Server) notify(m *params.Model, key string) {
	p, err := m.Get(key)
	if err != nil {
		return
	}
	serverLog.Infof("%s = %.3f %s", key, p.Value, p.Units)
	s.metrics.SetParamValue(key, p.Value)
	for _, fn := range s.observers {
		fn(key, p)
	}
}

// BroadcastAudio sends one PCM chunk to every peer.
func (s *Server) BroadcastAudio(samples []int16, sampleRate float64) error {
	ev, err := transport.NewEvent(transport.EventAudioChunk, transport.AudioChunk{Segment: samples, SampleRate: sampleRate})
	if err != nil {
		return err
	}
	if err := s.hub.Send(ev); err != nil {
		return err
	}
	s.metrics.RecordAudioChunk(len(samples))
	return nil
}

// BroadcastLevels sends the motor trigger state to every peer.
func (s *Server) BroadcastLevels(l transport.Levels) error {
	ev, err := transport.NewEvent(transport.EventLevels, l)
	if err != nil {
		return err
	}
	return s.hub.Send(ev)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		serverLog.Warnf("write response: %v", err)
	}
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Load())
}

type postBody struct {
	Key   string   `json:"key"`
	Value *float64 `json:"value"`
}

func (s *Server) handlePostParams(w http.ResponseWriter, r *http.Request) {
	var body postBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}
	if body.Key == "" || body.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key and value are required"})
		return
	}

	req := postRequest{key: body.Key, value: *body.Value, reply: make(chan error, 1)}
	select {
	case s.posts <- req:
	case <-r.Context().Done():
		return
	}

	var err error
	select {
	case err = <-req.reply:
	case <-r.Context().Done():
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, errs.ErrUnknownKey), errors.Is(err, errs.ErrOutOfRange), errors.Is(err, errs.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
