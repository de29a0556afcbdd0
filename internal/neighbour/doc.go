// Package neighbour resolves the hardware (MAC) address of a host from the
// local neighbour tables.
//
// Hosts are classified before lookup and exactly one path is taken:
//
//   - IPv4 literal: the kernel ARP table (/proc/net/arp)
//   - IPv6 literal: the IPv6 neighbour table (ip -6 neigh), zone dropped
//   - anything else: the name is resolved and its first IPv4 address is
//     looked up in the ARP table
//
// The tables only hold hosts this machine has recently talked to. Callers
// should open a connection to the host (a model probe does this) before
// asking for its MAC. A missing entry is reported as ErrNotFound.
package neighbour
