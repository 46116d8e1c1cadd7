package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Tyrowin/nexus-realtime"

// Metrics holds the instruments. A nil *Metrics records nothing.
type Metrics struct {
	sessions             metric.Int64UpDownCounter
	presenceTransitions  metric.Int64Counter
	notificationsCreated metric.Int64Counter
	notificationsPushed  metric.Int64Counter
	fanoutFailures       metric.Int64Counter
}

// NewMetrics creates the instruments on a meter from provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	sessions, err := meter.Int64UpDownCounter("realtime.sessions",
		metric.WithDescription("Open WebSocket sessions"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("realtime.presence.transitions",
		metric.WithDescription("Online/offline transitions"))
	if err != nil {
		return nil, err
	}
	created, err := meter.Int64Counter("realtime.notifications.created",
		metric.WithDescription("Notification records persisted"))
	if err != nil {
		return nil, err
	}
	pushed, err := meter.Int64Counter("realtime.notifications.pushed",
		metric.WithDescription("Live notification frames delivered to sessions"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("realtime.fanout.failures",
		metric.WithDescription("Fan-outs abandoned"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessions:             sessions,
		presenceTransitions:  transitions,
		notificationsCreated: created,
		notificationsPushed:  pushed,
		fanoutFailures:       failures,
	}, nil
}

// SessionOpened records a new session.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

// SessionClosed records a closed session.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, -1)
}

// PresenceTransition records a user going online or offline.
func (m *Metrics) PresenceTransition(ctx context.Context, online bool) {
	if m == nil {
		return
	}
	m.presenceTransitions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("online", online)))
}

// NotificationsCreated records persisted notifications of kind.
func (m *Metrics) NotificationsCreated(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.notificationsCreated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", kind)))
}

// NotificationsPushed records live frames delivered.
func (m *Metrics) NotificationsPushed(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.notificationsPushed.Add(ctx, int64(n))
}

// FanoutFailed records an abandoned fan-out.
func (m *Metrics) FanoutFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.fanoutFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
