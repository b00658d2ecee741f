/*
Package dns provides the embedded discovery DNS server for roost units.

Stateful workloads depend on stable per-member names: a replica must be
able to find its primary by name even while containers come and go. The
server answers A queries for two name shapes, resolved straight from the
controller's store on every query:

	db-0.db.default       one unit, by its stable ordinal name
	db.default            all Ready units of the workload, shuffled

Both shapes also accept the zone suffix (db-0.db.default.roost). Unit
names resolve in any phase once the container has an address, which lets
a replica sync from a primary that has not yet passed its readiness
probe. Workload names only include Ready units, so the collective name
is safe to use as a client entry point.

# Listener

The server follows the Docker embedded-DNS convention and listens on
127.0.0.11:53 by default, so a container resolv.conf of

	nameserver 127.0.0.11
	search roost

makes both short and suffixed names work transparently. Queries outside
the zone are forwarded to the configured upstream servers in order;
zone-suffixed names that do not exist get an authoritative NXDOMAIN
rather than leaking internal names upstream.

# Freshness

Records carry a 10 second TTL and there is no cache: a replacement unit
keeps its name but not its IP, and clients must observe the new address
within one TTL. Lookups are a store read per query, which the single
node store serves comfortably at discovery workloads' query rates.

# Usage

	server := dns.NewServer(store, &dns.Config{
		ListenAddr: "127.0.0.11:53",
		Zone:       "roost",
		Upstream:   []string{"8.8.8.8:53", "1.1.1.1:53"},
	})
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

Port 53 requires root or CAP_NET_BIND_SERVICE; development setups can
bind an unprivileged port instead and point dig at it directly.
*/
package dns
