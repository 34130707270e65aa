package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/visa2any/fareguard/internal/config"
	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/engine"
	"github.com/visa2any/fareguard/internal/utils"
)

// Server answers auth-request style gate checks on "/" and serves the
// ops API under the configured ops path.
type Server struct {
	cfg    *config.MainConfig
	rules  *config.RuleSet
	engine *engine.Engine
	logger *zap.Logger
}

func New(cfg *config.MainConfig, rules *config.RuleSet, eng *engine.Engine, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, rules: rules, engine: eng, logger: logger}
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.OpsPath+"/", http.StripPrefix(s.cfg.OpsPath, s.opsRouter()))
	mux.HandleFunc("/", s.handleGate)

	s.logger.Info("HTTP server listening", zap.String("port", s.cfg.Port))
	return http.ListenAndServe(":"+s.cfg.Port, mux)
}

// handleGate classifies the forwarded request and maps the action to
// a status nginx auth_request understands: 200 allow, 401 challenge,
// 403 block.
func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	fp := s.fingerprintFromRequest(r)
	class := s.classFromURI(s.forwardedURI(r))

	result := s.engine.Classify(fp, class)

	w.Header().Set("Fareguard-Action", string(result.Action))
	w.Header().Set("Fareguard-Category", string(result.Category))
	w.Header().Set("Fareguard-Confidence", strconv.Itoa(result.Confidence))
	w.Header().Set("Fareguard-Fingerprint", result.FingerprintHash)

	switch result.Action {
	case dataType.ActionBlock:
		http.Error(w, "blocked by "+s.cfg.NodeName, http.StatusForbidden)
	case dataType.ActionChallenge:
		http.Error(w, "verification required", http.StatusUnauthorized)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// fingerprintFromRequest assembles the observable metadata, trusting
// the configured forwarding headers the way the edge sets them.
func (s *Server) fingerprintFromRequest(r *http.Request) dataType.RequestFingerprint {
	return dataType.RequestFingerprint{
		Address:          s.clientAddress(r),
		UserAgent:        r.UserAgent(),
		AcceptLanguage:   r.Header.Get("Accept-Language"),
		AcceptEncoding:   r.Header.Get("Accept-Encoding"),
		ScreenResolution: r.Header.Get(s.cfg.ScreenHeader),
		Timezone:         r.Header.Get(s.cfg.TimezoneHeader),
		EngineSignature:  r.Header.Get(s.cfg.EngineSigHeader),
	}
}

func (s *Server) clientAddress(r *http.Request) string {
	for _, headerName := range s.cfg.ConnectingIPHeaders {
		value := r.Header.Get(headerName)
		if value == "" {
			continue
		}
		first := strings.TrimSpace(strings.Split(value, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) forwardedURI(r *http.Request) string {
	for _, headerName := range s.cfg.ConnectingURIHeaders {
		if value := r.Header.Get(headerName); value != "" {
			return value
		}
	}
	return r.URL.RequestURI()
}

// classFromURI derives the request class from the canonical URI.
// Search prefixes are checked before the broader API prefixes;
// everything else is a page view.
func (s *Server) classFromURI(uri string) dataType.RequestClass {
	canonical := utils.CanonicalizeURI(uri)
	if utils.HasAnyPrefix(canonical, s.rules.Classes.SearchPrefixes) {
		return dataType.ClassSearch
	}
	if utils.HasAnyPrefix(canonical, s.rules.Classes.APIPrefixes) {
		return dataType.ClassAPI
	}
	return dataType.ClassPage
}
