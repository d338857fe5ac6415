// Package cache implements content-addressed result caching for the execution
// pipeline together with the per-key single-flight locks that stop concurrent
// identical requests from reaching the executor more than once.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// requestMetadata names per-request options that never change a tool's
// output and are left out of the key.
var requestMetadata = map[string]struct{}{
	normalize(domain.OptionCorrelationID): {},
	normalize(domain.OptionAPIKey):        {},
	normalize(domain.OptionHTTPMethod):    {},
}

// BuildKey derives a deterministic cache key from a request. Capability and
// action are trimmed and lower-cased, the input is trimmed, and options are
// sorted by normalized key so map iteration order never leaks into the hash.
// Request metadata (correlation id, api key, http method) is skipped.
func BuildKey(capabilityID, action, input string, options map[string]string) string {
	h := sha256.New()
	writeKeyField(h, normalize(capabilityID))
	writeKeyField(h, normalize(action))
	writeKeyField(h, strings.TrimSpace(input))

	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(options))
	for k, v := range options {
		nk := normalize(k)
		if _, skip := requestMetadata[nk]; skip {
			continue
		}
		pairs = append(pairs, pair{nk, strings.TrimSpace(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	for _, p := range pairs {
		writeKeyField(h, p.k)
		writeKeyField(h, p.v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// writeKeyField writes a field to the hash followed by a null delimiter.
func writeKeyField(h hash.Hash, value string) {
	h.Write([]byte(value))
	h.Write([]byte{0})
}
