package receiver

import (
	"bufio"
	"context"
	"fmt"
	"maps"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultConnectTimeout    = 5 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute
)

// Callback is invoked with a snapshot of the receiver state after every
// notification.
type Callback func(State)

// Receiver is a persistent control connection to one receiver.
type Receiver interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Register(cb Callback) int
	Unregister(id int)
	State() State
	Send(ctx context.Context, cmd string) error
	Model() Model
	Host() string
}

// State maps command names to their last reported argument. On/off
// notifications such as "!MUTEON" are stored as MUTE=ON.
type State map[string]string

// Volume returns the zone's volume in dB, if reported.
func (s State) Volume(zone ZoneSpec) (float64, bool) {
	v, ok := s[zone.Prefix+CmdVolume]
	if !ok {
		return 0, false
	}
	db, err := ParseVolume(v)
	return db, err == nil
}

// On returns the value of an on/off command such as POWER or MUTE.
func (s State) On(zone ZoneSpec, cmd string) (on, known bool) {
	v, ok := s[zone.Prefix+cmd]
	if !ok {
		return false, false
	}
	switch v {
	case "ON", "1":
		return true, true
	case "OFF", "0":
		return false, true
	}
	return false, false
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Host string

	// Port defaults to the model's control port.
	Port int

	// ConnectTimeout bounds each dial. Default 5s.
	ConnectTimeout time.Duration

	// ReconnectInterval is the first reconnect delay; it grows by half on
	// each failure up to two minutes. Default 5s.
	ReconnectInterval time.Duration

	// Dial overrides net.Dialer.DialContext.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Client implements Receiver over the line protocol. It reconnects with
// backoff until Disconnect is called.
type Client struct {
	cfg   ClientConfig
	model Model

	mu        sync.Mutex // guards conn, connected, done and writes
	conn      net.Conn
	connected bool
	done      chan struct{}
	wg        sync.WaitGroup

	stateMu sync.RWMutex
	state   State

	cbMu      sync.RWMutex
	callbacks map[int]Callback
	nextID    int

	logger Logger
}

var _ Receiver = (*Client)(nil)

// NewClient creates an unconnected client for model at cfg.Host.
func NewClient(cfg ClientConfig, model Model) *Client {
	if cfg.Port == 0 {
		cfg.Port = model.Port
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	return &Client{
		cfg:       cfg,
		model:     model,
		state:     make(State),
		callbacks: make(map[int]Callback),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger. Call before Connect.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Model returns the model the client was created for.
func (c *Client) Model() Model { return c.model.clone() }

// Host returns the receiver host.
func (c *Client) Host() string { return c.cfg.Host }

func (c *Client) address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Connect dials the receiver, requests its current state and starts the
// receive loop. Calling Connect on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})

	if err := c.writeStatusQueries(conn); err != nil {
		conn.Close()
		c.conn, c.connected, c.done = nil, false, nil
		return fmt.Errorf("%w: %s: %w", ErrConnect, c.address(), err)
	}

	c.wg.Add(1)
	go c.receiveLoop(conn, c.done)
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dial := c.cfg.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	conn, err := dial(ctx, "tcp", c.address())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, c.address(), err)
	}
	return conn, nil
}

func (c *Client) writeStatusQueries(conn net.Conn) error {
	var b strings.Builder
	for _, z := range c.model.Zones {
		for _, cmd := range []string{CmdPower, CmdVolume, CmdMute, CmdSource} {
			b.WriteString(Query(z.Prefix + cmd))
			b.WriteByte(lineTerminator)
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)) //nolint:errcheck // surfaced by Write
	_, err := conn.Write([]byte(b.String()))
	return err
}

// Disconnect stops the receive loop and closes the connection. Safe to
// call more than once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	done := c.done
	if done == nil {
		c.mu.Unlock()
		return nil
	}
	close(done)
	c.done = nil
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// IsConnected reports whether the control connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Register adds a state callback and returns its ID for Unregister.
func (c *Client) Register(cb Callback) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextID++
	c.callbacks[c.nextID] = cb
	return c.nextID
}

// Unregister removes a callback. Unknown IDs are ignored.
func (c *Client) Unregister(id int) {
	c.cbMu.Lock()
	delete(c.callbacks, id)
	c.cbMu.Unlock()
}

// State returns a copy of the last reported state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return maps.Clone(c.state)
}

// Send writes one command frame, such as "!VOL(-300)".
func (c *Client) Send(ctx context.Context, cmd string) error {
	msg, err := ParseMessage(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline) //nolint:errcheck // surfaced by Write

	if _, err := c.conn.Write([]byte(msg.String() + string(lineTerminator))); err != nil {
		return fmt.Errorf("%w: sending %s: %w", ErrConnect, msg.Name, err)
	}
	return nil
}

func (c *Client) receiveLoop(conn net.Conn, done <-chan struct{}) {
	defer c.wg.Done()

	for {
		scanner := bufio.NewScanner(conn)
		scanner.Split(scanFrames)
		for scanner.Scan() {
			c.handleLine(scanner.Text())
		}

		select {
		case <-done:
			return
		default:
		}

		c.logger.Warn("receiver connection lost", "host", c.cfg.Host, "error", scanner.Err())
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		var ok bool
		conn, ok = c.reconnect(done)
		if !ok {
			return
		}
	}
}

// reconnect dials with growing backoff until it succeeds or done closes.
func (c *Client) reconnect(done <-chan struct{}) (net.Conn, bool) {
	ctx, cancel := doneContext(done)
	defer cancel()

	backoff := c.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			err = c.writeStatusQueries(conn)
			if err != nil {
				conn.Close()
			}
		}
		if err != nil {
			c.logger.Debug("receiver reconnect failed", "host", c.cfg.Host, "attempt", attempt, "error", err)
			backoff = min(time.Duration(float64(backoff)*1.5), maxReconnectInterval)
			continue
		}

		c.mu.Lock()
		select {
		case <-done:
			c.mu.Unlock()
			conn.Close()
			return nil, false
		default:
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		c.logger.Info("receiver reconnected", "host", c.cfg.Host, "attempts", attempt)
		return conn, true
	}
}

// doneContext returns a context cancelled when done closes, so Disconnect
// interrupts an in-flight dial.
func doneContext(done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *Client) handleLine(line string) {
	msg, err := ParseMessage(line)
	if err != nil || msg.Query {
		return
	}

	key, value := stateEntry(msg)
	c.stateMu.Lock()
	if c.state[key] == value {
		c.stateMu.Unlock()
		return
	}
	c.state[key] = value
	snapshot := maps.Clone(c.state)
	c.stateMu.Unlock()

	c.cbMu.RLock()
	cbs := make([]Callback, 0, len(c.callbacks))
	for _, cb := range c.callbacks {
		cbs = append(cbs, cb)
	}
	c.cbMu.RUnlock()

	for _, cb := range cbs {
		c.invoke(cb, snapshot)
	}
}

func (c *Client) invoke(cb Callback, s State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("receiver callback panic", "host", c.cfg.Host, "panic", r)
		}
	}()
	cb(maps.Clone(s))
}

// stateEntry folds "!MUTEON" into MUTE=ON and "!ZPOWEROFF" into
// ZPOWER=OFF; other frames map Name to Args.
func stateEntry(msg Message) (string, string) {
	if msg.Args != "" {
		return msg.Name, msg.Args
	}
	for _, suffix := range []string{"ON", "OFF"} {
		base, ok := strings.CutSuffix(msg.Name, suffix)
		if !ok {
			continue
		}
		switch strings.TrimPrefix(base, "Z") {
		case CmdPower, CmdMute:
			return base, suffix
		}
	}
	return msg.Name, msg.Args
}
