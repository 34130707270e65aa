package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/visa2any/fareguard/internal/config"
	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/engine"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func testConfig() *config.MainConfig {
	return &config.MainConfig{
		Port:                  "26600",
		OpsPath:               "/fareguard",
		NodeName:              "Fareguard",
		Store:                 "memory",
		ConnectingIPHeaders:   []string{"Fareguard-Real-IP", "X-Real-IP"},
		ConnectingHostHeaders: []string{"Fareguard-Real-Host"},
		ConnectingURIHeaders:  []string{"Fareguard-Original-URI"},
		ScreenHeader:          "Fareguard-Screen",
		TimezoneHeader:        "Fareguard-Timezone",
		EngineSigHeader:       "Fareguard-Engine-Sig",
		SessionHeader:         "Fareguard-Session",
	}
}

func testRules() *config.RuleSet {
	return &config.RuleSet{
		Detection: &dataType.DetectionRule{
			SecretKey:           "test-secret",
			CacheTTL:            0,
			AutoBlock:           false,
			Thresholds:          dataType.DefaultThresholds(),
			Weights:             dataType.DefaultScoreWeights(),
			HighVolumeThreshold: 150,
			MinSearchBurst:      10,
			SuspicionThreshold:  50,
			SuspicionOnBlock:    30,
			SuspicionOnMonitor:  5,
		},
		Challenge:    &dataType.ChallengeRule{TTL: 300, Reward: 25},
		PricingToken: &dataType.PricingTokenRule{Step: 30, Window: 300},
		Classes: &dataType.ClassRule{
			SearchPrefixes: []string{"/flights/search", "/api/search"},
			APIPrefixes:    []string{"/api/"},
		},
		RateBudgets: map[dataType.RequestClass]dataType.RateBudget{
			dataType.ClassSearch: {Limit: 100, Window: time.Minute},
			dataType.ClassAPI:    {Limit: 100, Window: time.Minute},
			dataType.ClassPage:   {Limit: 100, Window: time.Minute},
		},
		ScraperSignatures: []string{"python-requests", "curl/"},
		KnownBots:         []string{"googlebot"},
		StaticBlockTrie:   &dataType.TrieNode{},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	rules := testRules()
	stores := engine.Stores{
		Windows:    dataType.NewRateWindows(8, time.Hour),
		Ledger:     dataType.NewSuspicionLedger(8),
		Blocklist:  dataType.NewBlockList(),
		Cache:      dataType.NewResultCache(0),
		Challenges: dataType.NewChallengeStore(),
	}
	eng := engine.New(zap.NewNop(), rules, stores, nil)
	return New(testConfig(), rules, eng, zap.NewNop())
}

func gateRequest(addr, userAgent string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Fareguard-Real-IP", addr)
	r.Header.Set("User-Agent", userAgent)
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Fareguard-Timezone", "America/Sao_Paulo")
	r.Header.Set("Fareguard-Engine-Sig", "AppleWebKit")
	r.Header.Set("Fareguard-Screen", "1920x1080")
	return r
}

func TestHandleGate_Allow(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()

	s.handleGate(w, gateRequest("198.51.100.1", browserUA))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "allow", w.Header().Get("Fareguard-Action"))
	assert.Equal(t, "0", w.Header().Get("Fareguard-Confidence"))
	assert.NotEmpty(t, w.Header().Get("Fareguard-Fingerprint"))
}

func TestHandleGate_BlockedClient(t *testing.T) {
	s := newTestServer(t)
	s.engine.BlockClient("198.51.100.2", "test block")
	w := httptest.NewRecorder()

	s.handleGate(w, gateRequest("198.51.100.2", browserUA))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "block", w.Header().Get("Fareguard-Action"))
	assert.Equal(t, "100", w.Header().Get("Fareguard-Confidence"))
}

func TestHandleGate_ScraperChallenged(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()

	// scraper signature plus a bare header set trips the challenge
	// threshold without reaching the block one
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Fareguard-Real-IP", "198.51.100.3")
	r.Header.Set("User-Agent", "curl/8.4.0")
	s.handleGate(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "challenge", w.Header().Get("Fareguard-Action"))
}

func TestClientAddress(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"first configured header wins", map[string]string{
			"Fareguard-Real-IP": "203.0.113.1", "X-Real-IP": "203.0.113.2",
		}, "10.0.0.1:4000", "203.0.113.1"},
		{"falls through invalid values", map[string]string{
			"Fareguard-Real-IP": "not-an-ip", "X-Real-IP": "203.0.113.2",
		}, "10.0.0.1:4000", "203.0.113.2"},
		{"takes first of a forwarded list", map[string]string{
			"Fareguard-Real-IP": "203.0.113.3, 10.0.0.1",
		}, "10.0.0.1:4000", "203.0.113.3"},
		{"falls back to remote address", nil, "10.0.0.9:4000", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, s.clientAddress(r))
		})
	}
}

func TestClassFromURI(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		uri  string
		want dataType.RequestClass
	}{
		{"/flights/search?from=GRU&to=JFK", dataType.ClassSearch},
		{"/api/search/quotes", dataType.ClassSearch},
		{"/api/bookings/42", dataType.ClassAPI},
		{"/flights/GRU-JFK", dataType.ClassPage},
		{"/", dataType.ClassPage},
		{"/api/../admin", dataType.ClassPage},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, s.classFromURI(tt.uri))
		})
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestOps_BlockAndUnblock(t *testing.T) {
	s := newTestServer(t)
	router := s.opsRouter()

	w := postJSON(t, router, "/ops/block", map[string]string{"client": "198.51.100.4", "reason": "abuse"})
	require.Equal(t, http.StatusOK, w.Code)

	gate := httptest.NewRecorder()
	s.handleGate(gate, gateRequest("198.51.100.4", browserUA))
	assert.Equal(t, http.StatusForbidden, gate.Code)

	w = postJSON(t, router, "/ops/unblock", map[string]string{"client": "198.51.100.4"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp["existed"])

	gate = httptest.NewRecorder()
	s.handleGate(gate, gateRequest("198.51.100.4", browserUA))
	assert.Equal(t, http.StatusOK, gate.Code)
}

func TestOps_BlockRequiresClient(t *testing.T) {
	s := newTestServer(t)
	router := s.opsRouter()

	w := postJSON(t, router, "/ops/block", map[string]string{"reason": "abuse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/ops/block", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOps_Stats(t *testing.T) {
	s := newTestServer(t)
	s.engine.BlockClient("198.51.100.5", "abuse")
	router := s.opsRouter()

	r := httptest.NewRequest(http.MethodGet, "/ops/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var stats engine.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.BlockedCount)
}

func TestOps_Audit(t *testing.T) {
	s := newTestServer(t)
	s.engine.BlockClient("198.51.100.6", "abuse")
	router := s.opsRouter()

	r := httptest.NewRequest(http.MethodGet, "/ops/audit?limit=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var events []dataType.AuditEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "198.51.100.6", events[0].Client)
}

func TestOps_ChallengeExchange(t *testing.T) {
	s := newTestServer(t)
	router := s.opsRouter()

	w := postJSON(t, router, "/challenge/issue", map[string]string{"client": "198.51.100.7"})
	require.Equal(t, http.StatusOK, w.Code)
	var issued map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.NotEmpty(t, issued["token"])
	require.NotEmpty(t, issued["challenge"])

	w = postJSON(t, router, "/challenge/verify", map[string]string{
		"client": "198.51.100.7", "token": issued["token"],
	})
	require.Equal(t, http.StatusOK, w.Code)
	var verified map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.True(t, verified["ok"])

	w = postJSON(t, router, "/challenge/verify", map[string]string{
		"client": "198.51.100.7", "token": issued["token"],
	})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.False(t, verified["ok"], "challenge tokens are single use")
}

func TestOps_PricingToken(t *testing.T) {
	s := newTestServer(t)
	router := s.opsRouter()
	quote := map[string]string{
		"origin": "GRU", "destination": "JFK", "date": "2026-09-15", "session_id": "sess-1",
	}

	w := postJSON(t, router, "/pricing-token", quote)
	require.Equal(t, http.StatusOK, w.Code)
	var issued map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.Len(t, issued["token"], 32)

	verify := map[string]string{"token": issued["token"]}
	for k, v := range quote {
		verify[k] = v
	}
	w = postJSON(t, router, "/pricing-token/verify", verify)
	var verified map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.True(t, verified["valid"])

	verify["date"] = "2026-09-16"
	w = postJSON(t, router, "/pricing-token/verify", verify)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.False(t, verified["valid"], "token is bound to the quoted context")
}

func TestOps_HealthCheck(t *testing.T) {
	s := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health_check", nil)
	w := httptest.NewRecorder()
	s.opsRouter().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
