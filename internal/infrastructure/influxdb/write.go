package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReceiverState = "receiver_state"
	MeasurementFlowResult    = "flow_result"
)

// WriteReceiverMetric records one numeric receiver state field, such as
// the main-zone volume in dB.
//
//	client.WriteReceiverMetric(entryID, "MP-60", "volume_db", -30.5)
func (c *Client) WriteReceiverMetric(entryID, model, field string, value float64) {
	c.writePoint(write.NewPoint(
		MeasurementReceiverState,
		map[string]string{"entry_id": entryID, "model": model},
		map[string]any{field: value},
		time.Now(),
	))
}

// WriteFlowResult counts the outcome of a configuration flow step. outcome
// is the result type and reason is the abort reason or error code, if any.
func (c *Client) WriteFlowResult(source, outcome, reason string) {
	tags := map[string]string{"source": source, "outcome": outcome}
	if reason != "" {
		tags["reason"] = reason
	}
	c.writePoint(write.NewPoint(MeasurementFlowResult, tags, map[string]any{"count": 1}, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
