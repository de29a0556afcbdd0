package receiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultProbeTimeout bounds a probe when Prober.Timeout is zero.
const DefaultProbeTimeout = 3 * time.Second

// Prober identifies the model of a receiver by asking it directly.
type Prober struct {
	// Timeout bounds dial, write and read together.
	Timeout time.Duration

	// Port overrides ControlPort. Zero means ControlPort.
	Port int

	// Dial overrides net.Dialer.DialContext.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Probe opens a short-lived connection to host, sends "!DEVICE?" and looks
// the reply up in the registry. It returns ErrConnect when the host cannot
// be reached or does not answer in time, and ErrUnknownModel when it
// answers with a model that is not supported.
//
// The connection also refreshes the host's entry in the local neighbour
// table, which MAC resolution relies on.
func (p *Prober) Probe(ctx context.Context, host string) (Model, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	port := p.Port
	if port == 0 {
		port = ControlPort
	}

	dial := p.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	conn, err := dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return Model{}, fmt.Errorf("%w: %s: %w", ErrConnect, host, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // a failed deadline surfaces as a read error
	}

	if _, err := conn.Write([]byte(Query(CmdDevice) + string(lineTerminator))); err != nil {
		return Model{}, fmt.Errorf("%w: %s: %w", ErrConnect, host, err)
	}

	name, err := readDeviceName(conn)
	if err != nil {
		return Model{}, fmt.Errorf("%w: %s: %w", ErrConnect, host, err)
	}

	model, ok := LookupModel(name)
	if !ok {
		return Model{}, fmt.Errorf("%w: %s reports %q", ErrUnknownModel, host, name)
	}
	return model, nil
}

// readDeviceName skips unsolicited notifications until the DEVICE reply.
func readDeviceName(conn net.Conn) (string, error) {
	scanner := bufio.NewScanner(conn)
	scanner.Split(scanFrames)
	for scanner.Scan() {
		msg, err := ParseMessage(scanner.Text())
		if err != nil {
			continue
		}
		if msg.Name == CmdDevice && !msg.Query {
			return msg.Args, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("connection closed before device reply")
}
