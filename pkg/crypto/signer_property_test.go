//go:build property

package crypto

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("verify(p, sign(p)) holds for fresh keys", prop.ForAll(
		func(keys []string, vals []string) bool {
			payload := make(map[string]string)
			for i := 0; i < len(keys) && i < len(vals); i++ {
				payload[keys[i]] = vals[i]
			}
			signer, err := NewEd25519Signer()
			if err != nil {
				return false
			}
			sig, err := signer.Sign(payload)
			if err != nil {
				return false
			}
			return Verify(payload, sig)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("changing a value breaks the signature", prop.ForAll(
		func(key, val string) bool {
			signer, err := NewEd25519Signer()
			if err != nil {
				return false
			}
			payload := map[string]string{key: val}
			sig, err := signer.Sign(payload)
			if err != nil {
				return false
			}
			payload[key] = val + "!"
			return !Verify(payload, sig)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
