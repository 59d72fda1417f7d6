package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// Sink delivers a message to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DeliveryError records one failed delivery. It unwraps to the sink's error.
type DeliveryError struct {
	Sink  string
	Title string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %q via %s: %v", e.Title, e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DeliveryReport summarizes a Dispatch. Attempted counts sink×message pairs.
type DeliveryReport struct {
	Attempted int              `json:"attempted"`
	Delivered int              `json:"delivered"`
	Errors    []*DeliveryError `json:"-"`
}

// Err joins the delivery errors, or returns nil.
func (r DeliveryReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Notifier fans messages out to every configured sink.
type Notifier struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
}

// NewNotifier creates a Notifier. timeout bounds each single Send; zero means no
// bound beyond ctx.
func NewNotifier(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sinks: sinks, logger: logger, timeout: timeout}
}

// SinkNames lists configured sinks in order.
func (n *Notifier) SinkNames() []string {
	names := make([]string, len(n.sinks))
	for i, s := range n.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch sends every message to every sink, one send at a time: sinks in
// configuration order, messages in order within each sink. A failing sink
// never stops the others.
func (n *Notifier) Dispatch(ctx context.Context, msgs []Message) DeliveryReport {
	ctx, span := observability.Tracer().Start(ctx, "notify.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("messages", len(msgs)), attribute.Int("sinks", len(n.sinks)))

	var report DeliveryReport
	if len(n.sinks) == 0 || len(msgs) == 0 {
		return report
	}

	for _, s := range n.sinks {
		for _, m := range msgs {
			report.Attempted++
			if err := n.send(ctx, s, m); err != nil {
				report.Errors = append(report.Errors, &DeliveryError{Sink: s.Name(), Title: m.Title, Err: err})
				continue
			}
			report.Delivered++
		}
	}
	span.SetAttributes(attribute.Int("failed", len(report.Errors)))
	return report
}

func (n *Notifier) send(ctx context.Context, s Sink, m Message) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	start := time.Now()
	err := s.Send(ctx, m)
	if err != nil {
		observability.DeliveriesTotal.WithLabelValues(s.Name(), "failure").Inc()
		n.logger.Error("notification delivery failed",
			zap.String("sink", s.Name()),
			zap.String("title", m.Title),
			zap.Error(err),
		)
		return err
	}
	observability.DeliveriesTotal.WithLabelValues(s.Name(), "success").Inc()
	n.logger.Info("notification delivered",
		zap.String("sink", s.Name()),
		zap.String("title", m.Title),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Close closes every sink that holds resources.
func (n *Notifier) Close() error {
	var errs []error
	for _, s := range n.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
