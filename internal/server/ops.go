package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type blockRequest struct {
	Client string `json:"client"`
	Reason string `json:"reason"`
}

type clientRequest struct {
	Client string `json:"client"`
}

type challengeVerifyRequest struct {
	Client string `json:"client"`
	Token  string `json:"token"`
}

type pricingTokenRequest struct {
	Token       string `json:"token,omitempty"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	SessionID   string `json:"session_id"`
}

// opsRouter exposes the operator and web-layer surface: block/unblock,
// stats, audit trail, challenge exchange, pricing tokens and metrics.
func (s *Server) opsRouter() http.Handler {
	r := chi.NewRouter()

	r.Post("/ops/block", s.handleBlock)
	r.Post("/ops/unblock", s.handleUnblock)
	r.Get("/ops/stats", s.handleStats)
	r.Get("/ops/audit", s.handleAudit)

	r.Post("/challenge/issue", s.handleChallengeIssue)
	r.Post("/challenge/verify", s.handleChallengeVerify)

	r.Post("/pricing-token", s.handlePricingToken)
	r.Post("/pricing-token/verify", s.handlePricingTokenVerify)

	r.Get("/health_check", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Client == "" {
		badRequest(w, "client is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual block"
	}
	s.engine.BlockClient(req.Client, req.Reason)
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Client == "" {
		badRequest(w, "client is required")
		return
	}
	existed := s.engine.UnblockClient(req.Client)
	writeJSON(w, map[string]bool{"ok": true, "existed": existed})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.GetStats())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, s.engine.RecentAudit(limit))
}

func (s *Server) handleChallengeIssue(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Client == "" {
		badRequest(w, "client is required")
		return
	}
	tok, challenge := s.engine.IssueChallenge(req.Client)
	writeJSON(w, map[string]string{"token": tok, "challenge": challenge})
}

func (s *Server) handleChallengeVerify(w http.ResponseWriter, r *http.Request) {
	var req challengeVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Client == "" {
		badRequest(w, "client is required")
		return
	}
	ok := s.engine.VerifyChallenge(req.Client, req.Token)
	if ok {
		s.logger.Info("challenge passed", zap.String("client", req.Client))
	}
	writeJSON(w, map[string]bool{"ok": ok})
}

func (s *Server) handlePricingToken(w http.ResponseWriter, r *http.Request) {
	var req pricingTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok := s.engine.GeneratePricingToken(req.Origin, req.Destination, req.Date, req.SessionID)
	writeJSON(w, map[string]string{"token": tok})
}

func (s *Server) handlePricingTokenVerify(w http.ResponseWriter, r *http.Request) {
	var req pricingTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	valid := s.engine.VerifyPricingToken(req.Token, req.Origin, req.Destination, req.Date, req.SessionID)
	writeJSON(w, map[string]bool{"valid": valid})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}
