package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Steve-IX/Ezra/pkg/agent"
	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// VerifyRequest is the body of POST /api/v1/agent/verify. Signature may be
// omitted when the plan carries its own.
type VerifyRequest struct {
	ActionPlan json.RawMessage      `json:"action_plan"`
	Signature  *contracts.Signature `json:"signature,omitempty"`
}

// PublicKeyResponse is the body of GET /api/v1/crypto/public-key.
type PublicKeyResponse struct {
	PublicKey string `json:"public_key"`
	Algorithm string `json:"algorithm"`
}

// ProvidersResponse is the body of GET /api/v1/llm/providers.
type ProvidersResponse struct {
	Providers []llm.ProviderStatus `json:"providers"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Providers []string `json:"providers"`
}

// decodeBody reads a size-limited JSON body into v, writing the error
// response itself when it fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteRequestTooLarge(w, MaxBodyBytes)
			return false
		}
		WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req contracts.PlanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.plans.GeneratePlan(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, res)
	case errors.Is(err, agent.ErrInvalidRequest):
		s.logger.WarnContext(r.Context(), "plan request rejected", "error", err)
		WriteBadRequest(w, err.Error())
	case errors.Is(err, llm.ErrAllProvidersFailed):
		WriteInternalDetail(w, err, "plan generation failed: all providers failed")
	case errors.Is(err, llm.ErrUnsupportedProvider), errors.Is(err, llm.ErrProviderUnavailable):
		WriteInternalDetail(w, err, "plan generation failed: no usable provider")
	default:
		WriteInternalDetail(w, err, "plan generation failed")
	}
}

func (s *Server) handleVerifyPlan(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.ActionPlan) == 0 || string(req.ActionPlan) == "null" {
		WriteBadRequest(w, "action_plan is required")
		return
	}

	sig := req.Signature
	if sig == nil {
		var embedded struct {
			Signature *contracts.Signature `json:"signature"`
		}
		if err := json.Unmarshal(req.ActionPlan, &embedded); err == nil {
			sig = embedded.Signature
		}
	}
	if sig == nil {
		WriteBadRequest(w, "signature is required")
		return
	}

	writeJSON(w, s.plans.Inspect(r.Context(), req.ActionPlan, *sig))
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, PublicKeyResponse{PublicKey: s.plans.PublicKey(), Algorithm: s.plans.Algorithm()})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, ProvidersResponse{Providers: s.providers.Status()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: s.version, Providers: s.providers.ListAvailable()})
}
