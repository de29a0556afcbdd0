package flow

import (
	"context"

	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/mqtt"
)

// Notifiers fans a result out to several notifiers in order.
type Notifiers []Notifier

// Notify implements Notifier.
func (ns Notifiers) Notify(ctx context.Context, r Result) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, r)
		}
	}
}

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// MQTTNotifier publishes each result to lyngdorf/flow/{flow_id}.
type MQTTNotifier struct {
	Publisher Publisher
	Logger    Logger
}

// Notify implements Notifier.
func (n MQTTNotifier) Notify(_ context.Context, r Result) {
	if n.Publisher == nil || !n.Publisher.IsConnected() {
		return
	}
	if err := n.Publisher.PublishJSON(mqtt.Topics{}.Flow(r.FlowID), r, false); err != nil && n.Logger != nil {
		n.Logger.Warn("failed to publish flow result", "flow_id", r.FlowID, "error", err)
	}
}

// MetricsWriter is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteFlowResult(source, outcome, reason string)
}

// MetricsNotifier counts finished flows by source, outcome and reason.
type MetricsNotifier struct {
	Writer MetricsWriter
}

// Notify implements Notifier.
func (n MetricsNotifier) Notify(_ context.Context, r Result) {
	if n.Writer == nil || !r.Done() {
		return
	}
	n.Writer.WriteFlowResult(string(r.Source), string(r.Type), r.Reason)
}
