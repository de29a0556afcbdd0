package neighbour

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultARPTable is the Linux IPv4 neighbour table.
const DefaultARPTable = "/proc/net/arp"

// arpFlagComplete is ATF_COM: the entry has a resolved hardware address.
const arpFlagComplete = 0x2

// ARPTable looks IPv4 addresses up in a /proc/net/arp formatted file.
type ARPTable struct {
	Path string
}

// Lookup returns the MAC for ip, or ErrNotFound.
func (t ARPTable) Lookup(_ context.Context, ip string) (string, error) {
	path := t.Path
	if path == "" {
		path = DefaultARPTable
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening arp table: %w", err)
	}
	defer f.Close()
	return lookupARP(f, ip)
}

// lookupARP scans lines of the form
//
//	IP address  HW type  Flags  HW address         Mask  Device
//	192.168.1.5 0x1      0x2    aa:bb:cc:dd:ee:ff  *     eth0
func lookupARP(r io.Reader, ip string) (string, error) {
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != ip {
			continue
		}
		flags, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 32)
		if err != nil || flags&arpFlagComplete == 0 || isZeroMAC(fields[3]) {
			continue
		}
		return FormatMAC(fields[3])
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading arp table: %w", err)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ip)
}

// IPNeigh looks IPv6 addresses up with iproute2.
type IPNeigh struct {
	// Binary defaults to "ip".
	Binary string
}

// Lookup runs "ip -6 neigh show <ip>" and returns the lladdr, or
// ErrNotFound.
func (n IPNeigh) Lookup(ctx context.Context, ip string) (string, error) {
	bin := n.Binary
	if bin == "" {
		bin = "ip"
	}
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-6", "neigh", "show", ip)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s -6 neigh: %w", bin, err)
	}
	return parseNeigh(stdout.String(), ip)
}

// parseNeigh reads iproute2 output such as
//
//	fe80::1 dev eth0 lladdr aa:bb:cc:dd:ee:ff router REACHABLE
func parseNeigh(out, ip string) (string, error) {
	for line := range strings.Lines(out) {
		fields := strings.Fields(line)
		if len(fields) == 0 || NormaliseIPv6(fields[0]) != ip {
			continue
		}
		state := fields[len(fields)-1]
		if state == "FAILED" || state == "INCOMPLETE" {
			continue
		}
		for i := 1; i+1 < len(fields); i++ {
			if fields[i] == "lladdr" && !isZeroMAC(fields[i+1]) {
				return FormatMAC(fields[i+1])
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ip)
}
