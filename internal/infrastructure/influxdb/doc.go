// Package influxdb records receiver telemetry in InfluxDB v2.
//
// Two measurements are written:
//   - receiver_state: numeric state of set-up receivers (volume), tagged
//     with entry_id and model
//   - flow_result: one point per configuration flow result, tagged with
//     source, outcome and reason
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
// Writes are batched per influxdb.batch_size and influxdb.flush_interval.
// Batch errors are delivered to the SetOnError callback.
package influxdb
