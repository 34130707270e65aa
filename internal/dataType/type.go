package dataType

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Clock supplies the current time to every time-window computation so
// tests can pin it.
type Clock func() time.Time

type RequestClass string

const (
	ClassSearch RequestClass = "search"
	ClassAPI    RequestClass = "api"
	ClassPage   RequestClass = "page"
)

type Action string

const (
	ActionAllow     Action = "allow"
	ActionChallenge Action = "challenge"
	ActionBlock     Action = "block"
)

type BotCategory string

const (
	CategoryNone         BotCategory = "none"
	CategoryScraper      BotCategory = "scraper"
	CategoryCrawler      BotCategory = "crawler"
	CategoryAutomation   BotCategory = "automation"
	CategoryKnownService BotCategory = "known-service"
)

// RequestFingerprint is the observable metadata of a single request.
// Derived fresh on every call, never stored as-is.
type RequestFingerprint struct {
	Address          string
	UserAgent        string
	AcceptLanguage   string
	AcceptEncoding   string
	ScreenResolution string
	Timezone         string
	EngineSignature  string
}

// Hash collapses the identity-bearing subset of the fingerprint into a
// short stable key. Collisions are treated as the same client.
func (f RequestFingerprint) Hash() string {
	sum := xxhash.Sum64String(f.Address + "|" + f.UserAgent + "|" + f.AcceptLanguage + "|" + f.EngineSignature)
	return strconv.FormatUint(sum, 16)
}

// BotDetectionResult is the immutable outcome of one classification.
type BotDetectionResult struct {
	IsBot           bool
	Category        BotCategory
	Confidence      int
	Reasons         []string
	FingerprintHash string
	Action          Action
}

// AuditEvent records a suspicious-activity observation, kept separate
// from the classification result itself.
type AuditEvent struct {
	ID       string
	Client   string
	Severity string
	Reason   string
	At       time.Time
}

type ChallengeRecord struct {
	Token   string
	Expires time.Time
}

type BlockEntry struct {
	Reason    string
	BlockedAt time.Time
}

// ScoreWeights are the per-rule contributions of the scoring rubric.
type ScoreWeights struct {
	ScraperSignature     int `yaml:"scraper_signature" validate:"min=0"`
	RateViolation        int `yaml:"rate_violation" validate:"min=0"`
	HighVolume           int `yaml:"high_volume" validate:"min=0"`
	SearchWithoutPages   int `yaml:"search_without_pages" validate:"min=0"`
	MissingUserAgent     int `yaml:"missing_user_agent" validate:"min=0"`
	MissingLanguage      int `yaml:"missing_language" validate:"min=0"`
	EngineMismatch       int `yaml:"engine_mismatch" validate:"min=0"`
	MissingTimezone      int `yaml:"missing_timezone" validate:"min=0"`
	DegenerateResolution int `yaml:"degenerate_resolution" validate:"min=0"`
	PreviouslySuspicious int `yaml:"previously_suspicious" validate:"min=0"`
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		ScraperSignature:     25,
		RateViolation:        35,
		HighVolume:           25,
		SearchWithoutPages:   20,
		MissingUserAgent:     30,
		MissingLanguage:      10,
		EngineMismatch:       15,
		MissingTimezone:      5,
		DegenerateResolution: 20,
		PreviouslySuspicious: 20,
	}
}

// Thresholds are the decision boundaries of the engine. Totals at or
// above Block deny the request, at or above Challenge trigger a human
// verification step, at or above Monitor raise suspicion without
// changing the decision.
type Thresholds struct {
	Block     int `yaml:"block" validate:"gt=0"`
	Challenge int `yaml:"challenge" validate:"gt=0"`
	Monitor   int `yaml:"monitor" validate:"gt=0"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Block: 80, Challenge: 50, Monitor: 30}
}

// RateBudget is one sliding-window budget for a request class.
type RateBudget struct {
	Limit  int64
	Window time.Duration
}

type DetectionRule struct {
	SecretKey           string       `yaml:"secret_key"`
	CacheTTL            int64        `yaml:"cache_ttl" validate:"min=0"`
	AutoBlock           bool         `yaml:"auto_block"`
	Thresholds          Thresholds   `yaml:"thresholds"`
	Weights             ScoreWeights `yaml:"weights"`
	HighVolumeThreshold int64        `yaml:"high_volume_threshold" validate:"gt=0"`
	MinSearchBurst      int64        `yaml:"min_search_burst" validate:"gt=0"`
	SuspicionThreshold  int          `yaml:"suspicion_threshold" validate:"gt=0"`
	SuspicionOnBlock    int          `yaml:"suspicion_on_block" validate:"gt=0"`
	SuspicionOnMonitor  int          `yaml:"suspicion_on_monitor" validate:"gt=0"`
}

type ChallengeRule struct {
	TTL    int64 `yaml:"ttl" validate:"gt=0"`
	Reward int   `yaml:"reward" validate:"gt=0"`
}

type PricingTokenRule struct {
	Step   int64 `yaml:"step" validate:"gt=0"`
	Window int64 `yaml:"window" validate:"gt=0"`
}

type ClassRule struct {
	SearchPrefixes []string `yaml:"search_prefixes"`
	APIPrefixes    []string `yaml:"api_prefixes"`
}
