// Package logging provides structured logging for Lyngdorf Core.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	flow.SetLogger(logger.Component("flow"))
//	logger.Info("receiver probed", "host", host, "model", model.Name)
//
// Never log MQTT passwords, InfluxDB tokens or JWT secrets.
package logging
