// SPDX-License-Identifier: MIT
package session

import (
	"bbbtune/internal/discovery"
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

var clientLog = log.Named("Client")

// State is the client connection state.
type State int32

const (
	Disconnected State = iota
	FetchingSnapshot
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case FetchingSnapshot:
		return "fetching snapshot"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DialFunc opens the event channel to url.
type DialFunc func(ctx context.Context, url string) (transport.EventChannel, error)

// Discovery is the part of discovery.Listener the client drives: it listens
// while disconnected and is suspended while connected.
type Discovery interface {
	StartListening(cb discovery.Callback) error
	StopListening()
}

// ClientOptions configures a Client. Every callback runs on the reactor
// goroutine and must not block.
type ClientOptions struct {
	// FetchTimeout bounds the snapshot request.
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	Dial         DialFunc
	Discovery    Discovery

	OnState    func(State)
	OnSnapshot func(*params.Model)
	OnAudio    func(transport.AudioChunk)
	OnLevels   func(transport.Levels)
}

type intent struct {
	key     string
	percent float64
	reply   chan error
}

type connectResult struct {
	gen   uint64
	addr  string
	model *params.Model
	ch    transport.EventChannel
	err   error
}

// Client is the controlling side of the sync protocol.
type Client struct {
	opts  ClientOptions
	store *params.Store
	state atomic.Int32

	addresses chan string
	intents   chan intent
	refresh   chan struct{}
}

// NewClient creates a client with an empty model.
func NewClient(opts ClientOptions) *Client {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, url string) (transport.EventChannel, error) {
			return transport.DialWebSocket(ctx, url)
		}
	}
	return &Client{
		opts:      opts,
		store:     params.NewStore(params.NewModel()),
		addresses: make(chan string, 1),
		intents:   make(chan intent),
		refresh:   make(chan struct{}, 1),
	}
}

// Store holds the latest snapshot.
func (c *Client) Store() *params.Store { return c.store }

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// SetAddress asks the reactor to connect to addr (host:port). Only the most
// recent address is kept if the reactor is busy.
func (c *Client) SetAddress(addr string) {
	for {
		select {
		case c.addresses <- addr:
			return
		default:
		}
		select {
		case <-c.addresses:
		default:
		}
	}
}

// Refresh re-fetches the snapshot from the connected server.
func (c *Client) Refresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// SetParam applies a local intent and sends it to the server when
// connected. It returns once the reactor has applied it.
func (c *Client) SetParam(ctx context.Context, key string, percent float64) error {
	in := intent{key: key, percent: percent, reply: make(chan error, 1)}
	select {
	case c.intents <- in:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) onBeacon(payload []byte, from *net.UDPAddr) {
	b, err := discovery.ParseBeacon(payload)
	if err != nil {
		clientLog.Debugf("ignoring datagram from %s: %v", from, err)
		return
	}
	c.SetAddress(b.Address())
}

// reactor state, owned by Run
type clientLoop struct {
	*Client
	ctx       context.Context
	addr      string
	ch        transport.EventChannel
	events    <-chan transport.Event
	connectCh chan connectResult
	cancel    context.CancelFunc
	gen       uint64 // bumped per connect attempt
	listening bool
}

// Run is the client reactor. It owns the model, the event channel and the
// discovery listener, and returns when ctx is done.
func (c *Client) Run(ctx context.Context) error {
	l := &clientLoop{Client: c, ctx: ctx, connectCh: make(chan connectResult, 1)}
	l.setState(Disconnected)
	l.resumeDiscovery()
	defer l.shutdown()

	for {
		select {
		case addr := <-c.addresses:
			l.handleAddress(addr)
		case res := <-l.connectCh:
			l.handleConnect(res)
		case in := <-c.intents:
			in.reply <- l.applyIntent(in.key, in.percent)
		case <-c.refresh:
			l.handleRefresh()
		case ev, ok := <-l.events:
			if !ok {
				l.disconnect(l.ch.Err())
				continue
			}
			l.handleEvent(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *clientLoop) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	clientLog.Infof("%s", s)
	if l.opts.OnState != nil {
		l.opts.OnState(s)
	}
}

func (l *clientLoop) resumeDiscovery() {
	if l.opts.Discovery == nil || l.listening {
		return
	}
	if err := l.opts.Discovery.StartListening(l.onBeacon); err != nil {
		clientLog.Warnf("discovery unavailable: %v", err)
		return
	}
	l.listening = true
}

func (l *clientLoop) suspendDiscovery() {
	if l.opts.Discovery == nil || !l.listening {
		return
	}
	l.opts.Discovery.StopListening()
	l.listening = false
}

func (l *clientLoop) handleAddress(addr string) {
	if addr == l.addr && l.State() != Disconnected {
		return
	}
	l.closeChannel()
	l.addr = addr
	l.gen++
	gen := l.gen
	l.setState(FetchingSnapshot)

	ctx, cancel := context.WithCancel(l.ctx)
	l.cancel = cancel
	go func() {
		res := l.connect(ctx, addr)
		res.gen = gen
		select {
		case l.connectCh <- res:
		case <-ctx.Done():
			if res.ch != nil {
				res.ch.Close()
			}
		}
	}()
}

// connect runs off the reactor: fetch the snapshot, then open the channel.
func (l *clientLoop) connect(ctx context.Context, addr string) connectResult {
	model, err := l.fetchSnapshot(ctx, addr)
	if err != nil {
		return connectResult{addr: addr, err: err}
	}
	ch, err := l.opts.Dial(ctx, "ws://"+addr+"/ws")
	if err != nil {
		return connectResult{addr: addr, err: err}
	}
	return connectResult{addr: addr, model: model, ch: ch}
}

func (l *clientLoop) fetchSnapshot(ctx context.Context, addr string) (*params.Model, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/params", nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w: %w", errs.ErrChannel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %s: %w", resp.Status, errs.ErrChannel)
	}

	var snapshot map[string]params.Param
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return params.FromWire(snapshot)
}

func (l *clientLoop) handleConnect(res connectResult) {
	if res.gen != l.gen || l.State() != FetchingSnapshot {
		if res.ch != nil {
			res.ch.Close()
		}
		return
	}
	l.cancel = nil
	if res.err != nil {
		clientLog.Warnf("connect to %s failed: %v", res.addr, res.err)
		l.addr = ""
		l.setState(Disconnected)
		l.resumeDiscovery()
		return
	}

	model := l.store.Replace(res.model)
	l.ch = res.ch
	l.events = res.ch.Events()
	clientLog.Infof("connected to %s, %d parameters", res.addr, model.Len())
	l.suspendDiscovery()
	l.setState(Connected)
	l.publish(model)
}

func (l *clientLoop) handleRefresh() {
	if l.State() != Connected {
		return
	}
	ctx, cancel := context.WithTimeout(l.ctx, l.opts.FetchTimeout)
	defer cancel()
	model, err := l.fetchSnapshot(ctx, l.addr)
	if err != nil {
		clientLog.Warnf("refresh failed: %v", err)
		return
	}
	l.publish(l.store.Replace(model))
}

func (l *clientLoop) applyIntent(key string, percent float64) error {
	model, err := l.store.Update(func(m *params.Model) (*params.Model, error) {
		return m.SetFromPercent(key, percent)
	})
	if err != nil {
		return err
	}
	l.publish(model)

	if l.ch == nil {
		clientLog.Debugf("not connected, %s changed locally only", key)
		return nil
	}
	ev, err := transport.NewEvent(transport.EventParamChange, transport.ParamChange{Key: key, Value: percent})
	if err != nil {
		return err
	}
	if err := l.ch.Send(ev); err != nil {
		clientLog.Warnf("send %s: %v", key, err)
	}
	return nil
}

func (l *clientLoop) handleEvent(ev transport.Event) {
	switch ev.Name {
	case transport.EventParamChange:
		var change transport.ParamChange
		if err := ev.Decode(&change); err != nil {
			clientLog.Warnf("%v", err)
			return
		}
		model, err := l.store.Update(func(m *params.Model) (*params.Model, error) {
			return m.SetFromPercent(change.Key, change.Value)
		})
		if err != nil {
			clientLog.Warnf("rejected remote change: %v", err)
			return
		}
		l.publish(model)
	case transport.EventAudioChunk:
		var chunk transport.AudioChunk
		if err := ev.Decode(&chunk); err != nil {
			clientLog.Warnf("%v", err)
			return
		}
		if l.opts.OnAudio != nil {
			l.opts.OnAudio(chunk)
		}
	case transport.EventLevels:
		var levels transport.Levels
		if err := ev.Decode(&levels); err != nil {
			clientLog.Warnf("%v", err)
			return
		}
		if l.opts.OnLevels != nil {
			l.opts.OnLevels(levels)
		}
	default:
		clientLog.Debugf("ignoring event %q", ev.Name)
	}
}

func (l *clientLoop) publish(m *params.Model) {
	if l.opts.OnSnapshot != nil {
		l.opts.OnSnapshot(m)
	}
}

func (l *clientLoop) disconnect(cause error) {
	if cause != nil && !transport.IsLocalClose(cause) {
		clientLog.Warnf("connection to %s lost: %v", l.addr, cause)
	}
	l.closeChannel()
	l.addr = ""
	l.setState(Disconnected)
	l.resumeDiscovery()
}

func (l *clientLoop) closeChannel() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.ch != nil {
		l.ch.Close()
		l.ch = nil
		l.events = nil
	}
}

func (l *clientLoop) shutdown() {
	l.closeChannel()
	l.suspendDiscovery()
	l.setState(Disconnected)
}
