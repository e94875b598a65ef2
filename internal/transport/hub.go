// SPDX-License-Identifier: MIT
package transport

import (
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var hubLog = log.Named("Hub")

// Incoming is an event received from a peer, tagged with the peer's id so
// the rebroadcast can skip it.
type Incoming struct {
	Origin string
	Event  Event
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// Hub is the server side of the event channel. It serves websocket upgrades,
// gives every peer its own writer goroutine and queue, and funnels events
// read from peers into a single Incoming channel for the server reactor.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int

	peersMu  sync.Mutex
	peers    map[string]*peer
	closed   bool
	observer func(peers int)

	incoming chan Incoming
	done     chan struct{}
}

// NewHub creates a hub whose per-peer queues hold sendBuffer messages.
// Messages for a peer whose queue is full are dropped.
func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // the device is only reachable on the LAN
			},
		},
		sendBuffer: sendBuffer,
		peers:      make(map[string]*peer),
		incoming:   make(chan Incoming, 64),
		done:       make(chan struct{}),
	}
}

// SetObserver registers fn to be called with the peer count whenever a
// peer connects or leaves. Set it before serving.
func (h *Hub) SetObserver(fn func(peers int)) {
	h.peersMu.Lock()
	h.observer = fn
	h.peersMu.Unlock()
}

// Incoming delivers events read from any peer in per-peer arrival order.
func (h *Hub) Incoming() <-chan Incoming { return h.incoming }

// ServeHTTP upgrades the request and registers the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLog.Warnf("upgrade error: %v", err)
		return
	}

	p := &peer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.peersMu.Lock()
	if h.closed {
		h.peersMu.Unlock()
		conn.Close()
		return
	}
	h.peers[p.id] = p
	count := len(h.peers)
	observer := h.observer
	h.peersMu.Unlock()

	hubLog.Infof("peer %s connected from %s, total: %d", p.id, r.RemoteAddr, count)
	if observer != nil {
		observer(count)
	}

	go h.writePump(p)
	go h.readPump(p)
}

func (h *Hub) unregister(p *peer) {
	p.close()
	h.peersMu.Lock()
	_, ok := h.peers[p.id]
	delete(h.peers, p.id)
	count := len(h.peers)
	observer := h.observer
	h.peersMu.Unlock()
	if !ok {
		return
	}
	hubLog.Infof("peer %s disconnected, total: %d", p.id, count)
	if observer != nil {
		observer(count)
	}
}

func (h *Hub) readPump(p *peer) {
	defer h.unregister(p)

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hubLog.Warnf("peer %s read error: %v", p.id, err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil || ev.Name == "" {
			hubLog.Warnf("peer %s sent a malformed event, ignoring", p.id)
			continue
		}
		select {
		case h.incoming <- Incoming{Origin: p.id, Event: ev}:
		case <-p.done:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()

	for {
		select {
		case message := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				hubLog.Warnf("error sending to peer %s: %v", p.id, err)
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

// Send broadcasts ev to every peer.
func (h *Hub) Send(ev Event) error {
	return h.BroadcastFrom("", ev)
}

// BroadcastFrom sends ev to every peer except origin. An empty origin
// reaches everyone.
func (h *Hub) BroadcastFrom(origin string, ev Event) error {
	message, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}

	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	if h.closed {
		return fmt.Errorf("hub closed: %w", errs.ErrChannel)
	}
	for id, p := range h.peers {
		if id == origin {
			continue
		}
		select {
		case p.send <- message:
		default:
			// Queue full, drop for this peer.
			hubLog.Debugf("peer %s queue full, dropping %s", id, ev.Name)
		}
	}
	return nil
}

// PeerCount is the number of connected peers.
func (h *Hub) PeerCount() int {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	return len(h.peers)
}

// Close disconnects every peer. It is safe to call more than once.
func (h *Hub) Close() error {
	h.peersMu.Lock()
	if h.closed {
		h.peersMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.peersMu.Unlock()

	hubLog.Infof("closing, dropping %d peers", len(peers))
	for _, p := range peers {
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		p.close()
	}
	return nil
}

// Ensure Hub satisfies the interface
var _ Transport = (*Hub)(nil)
