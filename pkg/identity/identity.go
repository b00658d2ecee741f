// Package identity computes the stable names and network addresses of
// workload units.
//
// Identity is pure arithmetic over the workload name and ordinal: no
// state, no allocation tracking. The unit at ordinal k of workload w is
// always named w-k and always resolves at w-k.w.<namespace>, across
// restarts and replacements. Peers discover each other by deriving the
// same addresses from the replica count.
package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is the stable name and address of one unit.
type Identity struct {
	Name    string
	Address string
	Ordinal int
}

// For returns the identity of ordinal within the workload.
func For(workload, namespace string, ordinal int) Identity {
	name := Name(workload, ordinal)
	return Identity{
		Name:    name,
		Address: name + "." + workload + "." + namespace,
		Ordinal: ordinal,
	}
}

// Name returns the unit name for an ordinal: <workload>-<ordinal>.
func Name(workload string, ordinal int) string {
	return fmt.Sprintf("%s-%d", workload, ordinal)
}

// Address returns the DNS name units use to reach the given ordinal.
func Address(workload, namespace string, ordinal int) string {
	return fmt.Sprintf("%s.%s.%s", Name(workload, ordinal), workload, namespace)
}

// Peers returns the addresses of every ordinal in a workload of the given
// size, in ordinal order. Each unit receives this list at creation so
// members can form a cluster without a discovery service.
func Peers(workload, namespace string, replicas int) []string {
	peers := make([]string, 0, replicas)
	for i := 0; i < replicas; i++ {
		peers = append(peers, Address(workload, namespace, i))
	}
	return peers
}

// ParseName splits a unit name back into workload name and ordinal.
// The ordinal is everything after the last dash.
func ParseName(name string) (workload string, ordinal int, err error) {
	idx := strings.LastIndex(name, "-")
	if idx <= 0 || idx == len(name)-1 {
		return "", 0, fmt.Errorf("malformed unit name %q", name)
	}
	ordinal, err = strconv.Atoi(name[idx+1:])
	if err != nil || ordinal < 0 {
		return "", 0, fmt.Errorf("malformed unit name %q: ordinal suffix required", name)
	}
	return name[:idx], ordinal, nil
}
