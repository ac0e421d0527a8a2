// Package events publishes generation job snapshots to NATS so that
// dashboards and other services can follow jobs without polling the API.
//
// Every snapshot goes to "<subject>.<job-id>" as JSON. The stage is also set
// as the Newscast-Stage header so subscribers can filter terminal events
// without decoding the body.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/newscast/internal/generation"
)

// StageHeader carries the job stage of a published snapshot.
const StageHeader = "Newscast-Stage"

// msgPublisher is the part of *nats.Conn the Publisher uses.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// Publisher is a generation.SnapshotSink backed by NATS.
type Publisher struct {
	pub     msgPublisher
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

var _ generation.SnapshotSink = (*Publisher)(nil)

// Connect dials the NATS server at url. The connection retries in the
// background, so a NATS outage never blocks startup.
func Connect(url, subject string, opts ...Option) (*Publisher, error) {
	p := &Publisher{subject: subject}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("newscast"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.log.Warn("events: NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			p.log.Info("events: NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	p.nc = nc
	p.pub = nc
	p.log.Info("events: publishing job snapshots", "url", url, "subject", subject+".*")
	return p, nil
}

// Subject returns the subject snapshots of jobID are published to.
func Subject(prefix, jobID string) string {
	return prefix + "." + jobID
}

// Publish sends s. Failures are logged; a lost event never affects the job.
func (p *Publisher) Publish(_ context.Context, s generation.Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		p.log.Error("events: encode snapshot", "job_id", s.JobID, "err", err)
		return
	}
	msg := nats.NewMsg(Subject(p.subject, s.JobID))
	msg.Data = data
	msg.Header.Set(StageHeader, string(s.Stage))
	if err := p.pub.PublishMsg(msg); err != nil {
		p.log.Warn("events: publish snapshot", "job_id", s.JobID, "stage", s.Stage, "err", err)
	}
}

// Healthy reports whether the NATS connection is up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// Close flushes pending snapshots and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("events: drain: %w", err)
	}
	return nil
}
