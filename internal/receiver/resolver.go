package receiver

import (
	"context"
	"errors"
	"fmt"
)

// ModelProber is satisfied by *Prober.
type ModelProber interface {
	Probe(ctx context.Context, host string) (Model, error)
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resolver decides which supported model a host is.
type Resolver struct {
	prober ModelProber
	logger Logger
}

// NewResolver creates a Resolver that falls back to prober.
func NewResolver(prober ModelProber) *Resolver {
	return &Resolver{prober: prober, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve returns the model named by configuredModel if it is in the
// registry, without any network I/O. Otherwise it probes host. When both
// miss, the error matches ErrUnsupportedModel and also wraps the probe
// failure, so callers can still tell ErrConnect from ErrUnknownModel.
func (r *Resolver) Resolve(ctx context.Context, configuredModel, host string) (Model, error) {
	if m, ok := LookupModel(configuredModel); ok {
		return m, nil
	}

	if host == "" {
		return Model{}, fmt.Errorf("%w: %q", ErrUnsupportedModel, configuredModel)
	}

	r.logger.Debug("model lookup missed, probing host", "model", configuredModel, "host", host)
	m, err := r.prober.Probe(ctx, host)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Model{}, err
		}
		return Model{}, fmt.Errorf("%w: %w", ErrUnsupportedModel, err)
	}
	return m, nil
}
