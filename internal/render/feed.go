// SPDX-License-Identifier: MIT
package render

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/log"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var feedLog = log.Named("Feed")

const feedWriteWait = time.Second

// Frame is one message on the spectrum feed. Exactly one field is set.
type Frame struct {
	Points []analysis.Point  `json:"points,omitempty"`
	Params *params.Model     `json:"params,omitempty"`
	Levels *transport.Levels `json:"levels,omitempty"`
}

// SpectrumFeed serves display updates to browsers over WebSocket. Spectrum
// frames are rate limited; parameter and level frames are not.
//
// Thread Safety:
//   - The client map and the writes are guarded by one mutex
//   - Updates may come from any goroutine
type SpectrumFeed struct {
	clients         map[*websocket.Conn]bool
	clientsMutex    sync.Mutex
	upgrader        websocket.Upgrader
	lastSpectrum    time.Time
	minSendInterval time.Duration
}

// NewSpectrumFeed creates a feed that sends at most one spectrum frame per
// minInterval. Zero sends every frame, for feeds that already sit behind an
// analysis.Coalescer.
func NewSpectrumFeed(minInterval time.Duration) *SpectrumFeed {
	return &SpectrumFeed{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // displays are served from anywhere on the LAN
			},
		},
		minSendInterval: minInterval,
	}
}

// ServeHTTP upgrades the request and registers the connection until the
// browser goes away.
func (f *SpectrumFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		feedLog.Warnf("upgrade error: %v", err)
		return
	}

	f.clientsMutex.Lock()
	f.clients[conn] = true
	f.clientsMutex.Unlock()
	feedLog.Infof("display connected from %s", r.RemoteAddr)

	// Listen for close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.drop(conn)
				return
			}
		}
	}()
}

func (f *SpectrumFeed) drop(conn *websocket.Conn) {
	f.clientsMutex.Lock()
	defer f.clientsMutex.Unlock()
	if f.clients[conn] {
		delete(f.clients, conn)
		conn.Close()
	}
}

// Clients is the number of connected displays.
func (f *SpectrumFeed) Clients() int {
	f.clientsMutex.Lock()
	defer f.clientsMutex.Unlock()
	return len(f.clients)
}

func (f *SpectrumFeed) Spectrum(points []analysis.Point) {
	f.clientsMutex.Lock()
	now := time.Now()
	if now.Sub(f.lastSpectrum) < f.minSendInterval {
		f.clientsMutex.Unlock()
		return
	}
	f.lastSpectrum = now
	f.clientsMutex.Unlock()
	f.send(Frame{Points: points})
}

func (f *SpectrumFeed) Params(m *params.Model) { f.send(Frame{Params: m}) }

func (f *SpectrumFeed) Levels(l transport.Levels) { f.send(Frame{Levels: &l}) }

func (f *SpectrumFeed) send(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		feedLog.Errorf("marshal frame: %v", err)
		return
	}

	f.clientsMutex.Lock()
	defer f.clientsMutex.Unlock()
	for client := range f.clients {
		client.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(f.clients, client)
		}
	}
}

// Close disconnects every display. The feed stays usable.
func (f *SpectrumFeed) Close() error {
	f.clientsMutex.Lock()
	defer f.clientsMutex.Unlock()
	for client := range f.clients {
		client.Close()
		delete(f.clients, client)
	}
	return nil
}
