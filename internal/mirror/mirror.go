// SPDX-License-Identifier: MIT
//
// Package mirror republishes the device state to an MQTT broker so home
// automation can follow it: every parameter as a retained message under
// <prefix>/params/<key> and the motor levels under <prefix>/levels at a
// throttled rate.
package mirror

import (
	"bbbtune/internal/analysis"
	"bbbtune/internal/errs"
	"bbbtune/internal/log"
	"bbbtune/internal/metrics"
	"bbbtune/internal/params"
	"bbbtune/internal/transport"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var mirrorLog = log.Named("MQTT")

// Options configures the broker connection.
type Options struct {
	Broker         string // e.g. tcp://broker.local:1883
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	LevelsInterval time.Duration
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher mirrors parameters and levels. A nil Publisher ignores every
// call, so callers need not check whether MQTT is enabled.
type Publisher struct {
	client  client
	opts    Options
	metrics *metrics.Metrics
	levels  *analysis.Coalescer[transport.Levels]
}

// Connect dials the broker and starts the levels throttle. The client
// reconnects on its own after the first successful connect.
func Connect(opts Options, m *metrics.Metrics) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured: %w", errs.ErrInvalidArgument)
	}
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID("bbbtune_" + uuid.NewString()[:8])
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetryInterval(10 * time.Second)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		mirrorLog.Infof("connected to %s", opts.Broker)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		mirrorLog.Warnf("connection lost: %v", err)
	})

	c := mqtt.NewClient(co)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, token.Error())
	}
	p := newPublisher(c, opts, m)
	p.levels.Start()
	return p, nil
}

func newPublisher(c client, opts Options, m *metrics.Metrics) *Publisher {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "bbbtune"
	}
	if opts.LevelsInterval <= 0 {
		opts.LevelsInterval = time.Second
	}
	p := &Publisher{client: c, opts: opts, metrics: m}
	p.levels = analysis.NewCoalescer(opts.LevelsInterval, p.publishLevels)
	return p
}

// PublishParam publishes p retained under <prefix>/params/<key>. It has the
// shape of a session change observer.
func (p *Publisher) PublishParam(key string, prm params.Param) {
	if p == nil {
		return
	}
	p.publish(p.opts.TopicPrefix+"/params/"+key, true, prm)
}

// PublishSnapshot publishes every parameter of m.
func (p *Publisher) PublishSnapshot(m *params.Model) {
	if p == nil {
		return
	}
	for _, e := range m.Entries() {
		p.PublishParam(e.Key, e.Param)
	}
}

// OfferLevels queues l for the next levels tick, replacing any unsent value.
func (p *Publisher) OfferLevels(l transport.Levels) {
	if p == nil {
		return
	}
	p.levels.Offer(l)
}

func (p *Publisher) publishLevels(l transport.Levels) {
	p.publish(p.opts.TopicPrefix+"/levels", false, l)
}

func (p *Publisher) publish(topic string, retained bool, v any) {
	if !p.client.IsConnected() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		mirrorLog.Errorf("marshal %s: %v", topic, err)
		return
	}
	token := p.client.Publish(topic, p.opts.QoS, retained, data)

	// Completion is checked off the caller's goroutine; the reactor and the
	// streamer must not wait on the broker.
	go func() {
		token.Wait()
		err := token.Error()
		p.metrics.RecordMirrorPublish(err)
		if err != nil {
			mirrorLog.Warnf("publish %s: %v", topic, err)
		}
	}()
}

// Close stops the levels throttle and disconnects.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.levels.Stop()
	p.client.Disconnect(250)
}
