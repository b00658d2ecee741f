package dns

import (
	"fmt"
	"math/rand"
	"net"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/identity"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
)

// recordTTL is deliberately short: a replaced unit keeps its name but
// not its IP, so resolvers must not cache answers for long.
const recordTTL = 10

// Source is the slice of the store the resolver reads. Lookups hit the
// local store on every query; there is no record cache to invalidate.
type Source interface {
	GetWorkload(namespace, name string) (*types.Workload, error)
	GetUnit(namespace, workload string, ordinal int) (*types.Unit, error)
	ListUnits(namespace, workload string) ([]*types.Unit, error)
}

var _ Source = (storage.Store)(nil)

// Resolver answers A queries for the two name shapes every unit can rely
// on, with or without the zone suffix:
//
//	db-0.db.default    the unit's current IP, any phase
//	db.default         one record per Ready unit, shuffled
//
// The first is how a replica finds its primary (ordinal 0 has a stable
// name); the second is the client-facing entry point that only routes to
// units that passed their readiness probe.
type Resolver struct {
	source Source
	zone   string
	logger zerolog.Logger
}

// NewResolver builds a resolver over the given source. zone is the
// search suffix stripped from queries ("roost" matches db.default.roost).
func NewResolver(source Source, zone string) *Resolver {
	return &Resolver{
		source: source,
		zone:   strings.Trim(zone, "."),
		logger: log.WithComponent("dns"),
	}
}

// Resolve answers an A query. A nil slice with a nil error is an
// authoritative "name exists, no address right now"; an error means the
// name is not one of ours.
func (r *Resolver) Resolve(queryName string) ([]dns.RR, error) {
	fqdn := dns.Fqdn(queryName)
	name := r.stripZone(strings.TrimSuffix(queryName, "."))

	labels := strings.Split(name, ".")
	switch len(labels) {
	case 2:
		return r.resolveWorkload(fqdn, labels[1], labels[0])
	case 3:
		return r.resolveUnit(fqdn, labels[2], labels[1], labels[0])
	default:
		return nil, fmt.Errorf("not a workload or unit name: %s", name)
	}
}

// resolveWorkload returns the Ready units' IPs in random order, so
// clients that take the first answer spread across the set.
func (r *Resolver) resolveWorkload(fqdn, namespace, workload string) ([]dns.RR, error) {
	if _, err := r.source.GetWorkload(namespace, workload); err != nil {
		return nil, fmt.Errorf("workload %s/%s: %w", namespace, workload, err)
	}
	units, err := r.source.ListUnits(namespace, workload)
	if err != nil {
		return nil, fmt.Errorf("list units for %s/%s: %w", namespace, workload, err)
	}

	var ips []net.IP
	for _, u := range units {
		if u.Phase != types.UnitReady || u.IP == "" {
			continue
		}
		if ip := net.ParseIP(u.IP); ip != nil {
			ips = append(ips, ip)
		}
	}
	rand.Shuffle(len(ips), func(i, j int) { ips[i], ips[j] = ips[j], ips[i] })

	records := make([]dns.RR, 0, len(ips))
	for _, ip := range ips {
		records = append(records, aRecord(fqdn, ip))
	}

	r.logger.Debug().
		Str("query", fqdn).
		Int("answers", len(records)).
		Msg("Resolved workload name")
	return records, nil
}

// resolveUnit returns the unit's IP regardless of phase. A unit that is
// Running but not yet Ready is still reachable by its own name, which is
// what lets a replica sync from a primary that is mid-probe.
func (r *Resolver) resolveUnit(fqdn, namespace, workload, unitName string) ([]dns.RR, error) {
	parsed, ordinal, err := identity.ParseName(unitName)
	if err != nil || parsed != workload {
		return nil, fmt.Errorf("not a unit of %s: %s", workload, unitName)
	}

	u, err := r.source.GetUnit(namespace, workload, ordinal)
	if err != nil {
		return nil, fmt.Errorf("unit %s.%s.%s: %w", unitName, workload, namespace, err)
	}
	if u.IP == "" {
		// The name is allocated before the container has an address.
		return nil, nil
	}
	ip := net.ParseIP(u.IP)
	if ip == nil {
		return nil, fmt.Errorf("unit %s has malformed IP %q", unitName, u.IP)
	}

	r.logger.Debug().
		Str("query", fqdn).
		Str("ip", u.IP).
		Msg("Resolved unit name")
	return []dns.RR{aRecord(fqdn, ip)}, nil
}

// stripZone removes the zone suffix when present; bare names pass through.
func (r *Resolver) stripZone(name string) string {
	if r.zone == "" {
		return name
	}
	return strings.TrimSuffix(name, "."+r.zone)
}

// inZone reports whether the query name carries our zone suffix.
func (r *Resolver) inZone(queryName string) bool {
	if r.zone == "" {
		return false
	}
	name := strings.TrimSuffix(queryName, ".")
	return strings.HasSuffix(name, "."+r.zone)
}

func aRecord(fqdn string, ip net.IP) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   fqdn,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    recordTTL,
		},
		A: ip,
	}
}
