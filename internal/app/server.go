// SPDX-License-Identifier: MIT
//
// Package app wires the components into the two process roles. The server
// streams audio, drives the motor triggers and owns the authoritative
// parameter model; the client discovers it, mirrors the model and turns the
// received audio into a display spectrum.
package app

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/audio"
	"bbbtune/internal/config"
	"bbbtune/internal/discovery"
	"bbbtune/internal/log"
	"bbbtune/internal/metrics"
	"bbbtune/internal/mirror"
	"bbbtune/internal/motor"
	"bbbtune/internal/params"
	"bbbtune/internal/session"
	"bbbtune/internal/transport"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

var appLog = log.Named("App")

const shutdownTimeout = 2 * time.Second

// OpenSource builds the audio source named by cfg.
func OpenSource(cfg config.AudioConfig) (audio.Source, error) {
	switch cfg.Source {
	case config.SourceWAV:
		return audio.OpenWAV(cfg.File)
	case config.SourceCapture:
		return audio.OpenCapture(cfg.InputDevice, cfg.SampleRate, cfg.FramesPerBuffer)
	default:
		return audio.NewToneSource(cfg.SampleRate, cfg.ToneFrequency, 0.8, cfg.ToneModulation)
	}
}

// Server is the device process.
type Server struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	store      *params.Store
	hub        *transport.Hub
	session    *session.Server
	streamer   *audio.Streamer
	mirror     *mirror.Publisher
	advertiser *discovery.Advertiser
	listener   net.Listener
	http       *http.Server
}

// NewServer builds the server around source and binds the listen address.
// Nothing runs until Run. The server owns source from here on; on error it
// is closed along with anything else already opened.
func NewServer(cfg *config.Config, source audio.Source) (_ *Server, err error) {
	s := &Server{
		cfg:     cfg,
		metrics: metrics.New(),
		store:   params.NewStore(params.NewDefaultModel()),
		hub:     transport.NewHub(cfg.Server.SendBuffer),
	}
	s.session = session.NewServer(s.store, s.hub, s.metrics)
	defer func() {
		if err != nil {
			s.mirror.Close()
			if cerr := source.Close(); cerr != nil {
				appLog.Warnf("closing audio: %v", cerr)
			}
		}
	}()

	streamer, err := audio.NewStreamer(source, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return nil, err
	}
	s.streamer = streamer
	streamer.Gate().SetThreshold(cfg.Audio.GateThreshold)
	if cfg.Audio.GateEnabled {
		streamer.Gate().Enable()
	}
	streamer.AddSink(analysis.ProcessorFunc(s.broadcastAudio))

	if cfg.MQTT.Enabled {
		pub, err := mirror.Connect(mirror.Options{
			Broker:         cfg.MQTT.Broker,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			LevelsInterval: cfg.MQTT.LevelsInterval,
		}, s.metrics)
		if err != nil {
			// The device works without its mirror.
			appLog.Warnf("MQTT mirror disabled: %v", err)
		} else {
			s.mirror = pub
			s.session.OnChange(pub.PublishParam)
			pub.PublishSnapshot(s.store.Load())
		}
	}

	if cfg.Server.Motor {
		anim, err := motor.NewAnimator(s.store, motor.NewLogActuator(), s.metrics)
		if err != nil {
			return nil, err
		}
		anim.OnLevels(s.broadcastLevels)
		streamer.AddSink(anim)
	}

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Server.Address, err)
	}
	s.listener = ln
	s.http = &http.Server{Handler: s.session.Handler(), ReadHeaderTimeout: 5 * time.Second}

	if cfg.Server.Advertise {
		if err := s.setupAdvertiser(); err != nil {
			appLog.Warnf("discovery disabled: %v", err)
		}
	}
	return s, nil
}

func (s *Server) setupAdvertiser() error {
	ip, err := discovery.LocalIPv4()
	if err != nil {
		return err
	}
	port := s.listener.Addr().(*net.TCPAddr).Port
	adv, err := discovery.NewAdvertiser(discovery.NewBeacon(ip, port), discovery.Options{
		Group:    s.cfg.Discovery.Group,
		Port:     s.cfg.Discovery.Port,
		TTL:      s.cfg.Discovery.TTL,
		Interval: s.cfg.Discovery.Interval,
		OnSend:   s.metrics.RecordBeacon,
	})
	if err != nil {
		return err
	}
	s.advertiser = adv
	return nil
}

// Addr is the bound listen address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Store is the authoritative parameter store.
func (s *Server) Store() *params.Store { return s.store }

func (s *Server) broadcastAudio(samples []int16, sampleRate float64) {
	if err := s.session.BroadcastAudio(samples, sampleRate); err != nil {
		appLog.Debugf("audio chunk not sent: %v", err)
	}
}

func (s *Server) broadcastLevels(l transport.Levels) {
	if err := s.session.BroadcastLevels(l); err != nil {
		appLog.Debugf("levels not sent: %v", err)
	}
	s.mirror.OfferLevels(l)
}

// Run serves until ctx is done or a component fails, then shuts every
// component down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLog.Infof("serving on %s", s.listener.Addr())
		if err := s.http.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.session.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return s.streamer.Run(gctx) })

	if s.advertiser != nil {
		if err := s.advertiser.Start(); err != nil {
			appLog.Warnf("advertiser: %v", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	err := g.Wait()
	if cerr := s.streamer.Close(); cerr != nil {
		appLog.Warnf("closing audio: %v", cerr)
	}
	return err
}

func (s *Server) shutdown() error {
	appLog.Infof("shutting down")
	if s.advertiser != nil {
		s.advertiser.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	s.mirror.Close()
	return err
}
