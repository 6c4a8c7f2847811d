//go:build property

package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Insertion order of map keys never changes the canonical bytes.
func TestJCS_KeyOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("forward and reverse construction canonicalize identically", prop.ForAll(
		func(keys []string, vals []string) bool {
			n := len(keys)
			if len(vals) < n {
				n = len(vals)
			}
			forward := make(map[string]any, n)
			reverse := make(map[string]any, n)
			for i := 0; i < n; i++ {
				forward[keys[i]] = vals[i]
			}
			for i := n - 1; i >= 0; i-- {
				if _, ok := reverse[keys[i]]; !ok {
					reverse[keys[i]] = forward[keys[i]]
				}
			}
			a, err := JCS(forward)
			if err != nil {
				return false
			}
			b, err := JCS(reverse)
			if err != nil {
				return false
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
