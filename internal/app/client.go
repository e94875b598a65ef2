// SPDX-License-Identifier: MIT
package app

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/audio"
	"bbbtune/internal/config"
	"bbbtune/internal/discovery"
	"bbbtune/internal/errs"
	"bbbtune/internal/params"
	"bbbtune/internal/render"
	"bbbtune/internal/session"
	"bbbtune/internal/transport"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Intent is a parameter change requested on the command line.
type Intent struct {
	Key     string
	Percent float64
}

// ParseIntent parses "Key=percent" with percent in [0, 1].
func ParseIntent(s string) (Intent, error) {
	key, val, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return Intent{}, fmt.Errorf("intent %q must look like Key=0.5: %w", s, errs.ErrInvalidArgument)
	}
	p, err := strconv.ParseFloat(val, 64)
	if err != nil || p < 0 || p > 1 {
		return Intent{}, fmt.Errorf("intent %q: percent must be in [0, 1]: %w", s, errs.ErrInvalidArgument)
	}
	return Intent{Key: key, Percent: p}, nil
}

// Client is the tuning process.
type Client struct {
	cfg      *config.Config
	intents  []Intent
	renderer render.Renderer
	session  *session.Client
	feed     *render.SpectrumFeed
	feedLn   net.Listener
	recorder *audio.Recorder
	frames   *analysis.Coalescer[[]analysis.Point]

	// Owned by the session reactor goroutine.
	analyzer *analysis.SpectrumAnalyzer

	connectedOnce sync.Once
	connected     chan struct{}
}

// NewClient builds the client. A nil renderer logs updates. When a feed
// address is configured every update is also served on the spectrum feed.
func NewClient(cfg *config.Config, r render.Renderer, intents []Intent) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		intents:   intents,
		connected: make(chan struct{}),
	}

	if cfg.Client.FeedAddress != "" {
		ln, err := net.Listen("tcp", cfg.Client.FeedAddress)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.Client.FeedAddress, err)
		}
		c.feedLn = ln
		// c.frames already paces spectrum frames.
		c.feed = render.NewSpectrumFeed(0)
	}
	if r == nil {
		r = render.NewLogRenderer()
	}
	if c.feed != nil {
		r = render.Multi(r, c.feed)
	}
	c.renderer = r
	c.frames = analysis.NewCoalescer(cfg.Client.RenderInterval, r.Spectrum)

	if cfg.Client.RecordFile != "" {
		c.recorder = audio.NewRecorder(cfg.Client.RecordFile)
	}

	opts := session.ClientOptions{
		FetchTimeout: cfg.Client.FetchTimeout,
		OnState:      c.onState,
		OnSnapshot:   r.Params,
		OnAudio:      c.onAudio,
		OnLevels:     r.Levels,
	}
	if cfg.Client.Discover {
		l, err := discovery.NewListener(cfg.Discovery.Group, cfg.Discovery.Port)
		if err != nil {
			appLog.Warnf("discovery disabled: %v", err)
		} else {
			opts.Discovery = l
		}
	}
	c.session = session.NewClient(opts)
	return c, nil
}

// Session exposes the sync client, e.g. for Refresh.
func (c *Client) Session() *session.Client { return c.session }

// FeedAddr is the bound spectrum feed address, or nil when disabled.
func (c *Client) FeedAddr() net.Addr {
	if c.feedLn == nil {
		return nil
	}
	return c.feedLn.Addr()
}

func (c *Client) onState(s session.State) {
	switch s {
	case session.Connected:
		c.connectedOnce.Do(func() { close(c.connected) })
	case session.Disconnected:
		// A new server may stream at another rate; start the display over.
		if c.analyzer != nil {
			c.analyzer.Reset()
		}
		c.frames.Discard()
	}
}

func (c *Client) onAudio(chunk transport.AudioChunk) {
	if c.analyzer == nil || c.analyzer.SampleRate() != chunk.SampleRate {
		a, err := analysis.NewSpectrumAnalyzer(c.cfg.Client.DisplaySize, chunk.SampleRate, c.cfg.Client.Smoothing)
		if err != nil {
			appLog.Warnf("cannot analyse stream at %.0f Hz: %v", chunk.SampleRate, err)
			return
		}
		c.analyzer = a
	}
	c.analyzer.Push(chunk.Segment)
	// Compute reuses its frame; the coalescer hands it to another goroutine.
	c.frames.Offer(slices.Clone(c.analyzer.Compute()))

	if c.recorder != nil {
		c.recorder.Process(chunk.Segment, chunk.SampleRate)
	}
}

// applyIntents waits for the first connection and sends the command line
// intents.
func (c *Client) applyIntents(ctx context.Context) error {
	if len(c.intents) == 0 {
		return nil
	}
	select {
	case <-c.connected:
	case <-ctx.Done():
		return nil
	}
	for _, in := range c.intents {
		if err := c.session.SetParam(ctx, in.Key, in.Percent); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			appLog.Warnf("set %s: %v", in.Key, err)
			continue
		}
		appLog.Infof("requested %s = %.3f", in.Key, in.Percent)
	}
	return nil
}

// Run connects (to the configured address or the first beacon) and runs
// until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	c.frames.Start()
	defer c.frames.Stop()

	var feedServer *http.Server
	if c.feed != nil {
		mux := http.NewServeMux()
		mux.Handle("GET /spectrum", c.feed)
		feedServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			appLog.Infof("spectrum feed on ws://%s/spectrum", c.feedLn.Addr())
			if err := feedServer.Serve(c.feedLn); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("feed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := c.session.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if addr := c.cfg.Client.ServerAddress; addr != "" {
		c.session.SetAddress(addr)
	}
	g.Go(func() error { return c.applyIntents(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		if feedServer == nil {
			return nil
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.feed.Close()
		return feedServer.Shutdown(sctx)
	})

	err := g.Wait()
	if c.recorder != nil {
		if rerr := c.recorder.Close(); rerr != nil {
			appLog.Warnf("recording: %v", rerr)
		}
	}
	return err
}

// Store is the client's copy of the parameter model.
func (c *Client) Store() *params.Store { return c.session.Store() }
