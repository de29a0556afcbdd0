package receiver

import (
	"bufio"
	"net"
	"sync"
	"testing"
)

// fakeReceiver is a TCP server speaking the control protocol.
type fakeReceiver struct {
	t        *testing.T
	ln       net.Listener
	reply    func(line string) []string
	mu       sync.Mutex
	conns    []net.Conn
	received []string
	accepted chan struct{}
}

func newFakeReceiver(t *testing.T, reply func(line string) []string) *fakeReceiver {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeReceiver{t: t, ln: ln, reply: reply, accepted: make(chan struct{}, 16)}
	go f.serve()
	t.Cleanup(f.Close)
	return f
}

func (f *fakeReceiver) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeReceiver) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		f.accepted <- struct{}{}
		go f.handle(conn)
	}
}

func (f *fakeReceiver) handle(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Split(scanFrames)
	for scanner.Scan() {
		line := scanner.Text()
		f.mu.Lock()
		f.received = append(f.received, line)
		f.mu.Unlock()
		if f.reply == nil {
			continue
		}
		for _, out := range f.reply(line) {
			if _, err := conn.Write([]byte(out + "\r")); err != nil {
				return
			}
		}
	}
}

// push sends an unsolicited notification on every open connection.
func (f *fakeReceiver) push(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_, _ = c.Write([]byte(line + "\r"))
	}
}

// dropConnections closes server-side connections but keeps listening.
func (f *fakeReceiver) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeReceiver) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeReceiver) Close() {
	f.ln.Close()
	f.dropConnections()
}

func mp60Reply(line string) []string {
	switch line {
	case "!DEVICE?":
		return []string{"!DEVICE(MP-60)"}
	case "!VOL?":
		return []string{"!VOL(-305)"}
	case "!POWER?":
		return []string{"!POWERON"}
	}
	return nil
}
