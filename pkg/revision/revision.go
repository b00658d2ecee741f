// Package revision derives stable identifiers for unit templates.
//
// The reconciler compares a unit's recorded revision against the revision
// of the current template to detect drift; equality means the unit was
// created from the template in force.
package revision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roostlabs/roost/pkg/types"
)

// Length is the number of hex characters kept from the digest. Sixteen is
// short enough for names and log lines while collisions stay implausible.
const Length = 16

// Compute hashes the template into its revision string. JSON encoding of
// the struct is deterministic (fields are emitted in declaration order,
// and the template holds no maps), so equal templates always produce
// equal revisions.
func Compute(tmpl *types.UnitTemplate) string {
	data, err := json.Marshal(tmpl)
	if err != nil {
		// UnitTemplate contains only marshalable fields; this is
		// unreachable with a well-formed template.
		panic(fmt.Sprintf("revision: marshal template: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:Length]
}
