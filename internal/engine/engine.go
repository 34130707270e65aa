package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visa2any/fareguard/internal/check"
	"github.com/visa2any/fareguard/internal/config"
	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/token"
	"github.com/visa2any/fareguard/internal/utils"
)

// RateWindowStore holds per (client, class) sliding windows.
type RateWindowStore interface {
	Observe(client string, class dataType.RequestClass, now time.Time, window time.Duration) int64
	Count(client string, class dataType.RequestClass, now time.Time, window time.Duration) int64
	Reset(client string)
}

// SuspicionStore is the per-client risk ledger.
type SuspicionStore interface {
	Increment(client string, amount int) int
	Decrement(client string, amount int) int
	Get(client string) int
	Remove(client string)
	Count() int
}

// BlocklistStore is the explicit deny-set.
type BlocklistStore interface {
	Block(client, reason string, now time.Time)
	Unblock(client string) bool
	Get(client string) (dataType.BlockEntry, bool)
	Count() int
	GetSnapshot() map[string]dataType.BlockEntry
}

// ResultCacheStore is the best-effort detection result cache.
type ResultCacheStore interface {
	Get(hash string, now time.Time) (dataType.BotDetectionResult, bool)
	Set(hash string, result dataType.BotDetectionResult, now time.Time)
	Purge()
}

// Stores groups the swappable state backends of one engine instance.
type Stores struct {
	Windows    RateWindowStore
	Ledger     SuspicionStore
	Blocklist  BlocklistStore
	Cache      ResultCacheStore
	Challenges token.ChallengeStore
}

// Options carries test seams; zero value means production defaults.
type Options struct {
	Clock dataType.Clock
}

// Stats is the read-only monitoring snapshot.
type Stats struct {
	BlockedCount      int `json:"blockedCount"`
	SuspiciousCount   int `json:"suspiciousCount"`
	PendingChallenges int `json:"pendingChallenges"`
}

// Engine classifies inbound request metadata and owns every piece of
// protective state. All operations are in-memory and safe for
// concurrent use; nothing on the request path blocks.
type Engine struct {
	logger  *zap.Logger
	rules   *config.RuleSet
	clock   dataType.Clock
	stores  Stores
	audit   *dataType.AuditTrail
	metrics *Metrics

	challenges *token.ChallengeService
	pricing    *token.PricingService
}

func New(logger *zap.Logger, rules *config.RuleSet, stores Stores, opts *Options) *Engine {
	clock := time.Now
	if opts != nil && opts.Clock != nil {
		clock = opts.Clock
	}

	e := &Engine{
		logger: logger,
		rules:  rules,
		clock:  clock,
		stores: stores,
		audit:  dataType.NewAuditTrail(512),
	}
	e.challenges = token.NewChallengeService(stores.Challenges, stores.Ledger, clock, *rules.Challenge)
	e.pricing = token.NewPricingService(rules.Detection.SecretKey, clock, *rules.PricingToken)
	return e
}

// Classify runs the full detection pipeline for one request.
func (e *Engine) Classify(fp dataType.RequestFingerprint, class dataType.RequestClass) dataType.BotDetectionResult {
	now := e.clock()
	hash := fp.Hash()
	client := fp.Address

	if cached, ok := e.stores.Cache.Get(hash, now); ok {
		e.countDecision(cached.Action, true)
		return cached
	}

	if entry, blocked := e.stores.Blocklist.Get(client); blocked {
		result := dataType.BotDetectionResult{
			IsBot:           true,
			Category:        dataType.CategoryAutomation,
			Confidence:      100,
			Reasons:         []string{fmt.Sprintf("client is blocklisted: %s", entry.Reason)},
			FingerprintHash: hash,
			Action:          dataType.ActionBlock,
		}
		return e.finish(client, result, now)
	}

	if e.rules.StaticBlockTrie.SearchString(client) {
		result := dataType.BotDetectionResult{
			IsBot:           true,
			Category:        dataType.CategoryScraper,
			Confidence:      100,
			Reasons:         []string{"client address in curated deny ranges"},
			FingerprintHash: hash,
			Action:          dataType.ActionBlock,
		}
		return e.finish(client, result, now)
	}

	if bot, ok := check.KnownBot(fp.UserAgent, e.rules.KnownBots); ok {
		result := dataType.BotDetectionResult{
			IsBot:           true,
			Category:        dataType.CategoryKnownService,
			Confidence:      90,
			Reasons:         []string{fmt.Sprintf("known service crawler: %s", bot)},
			FingerprintHash: hash,
			Action:          dataType.ActionAllow,
		}
		return e.finish(client, result, now)
	}

	rule := e.rules.Detection
	total := 0
	var reasons []string

	scraperToken, scraperHit := check.ScraperSignature(fp.UserAgent, e.rules.ScraperSignatures)
	if scraperHit {
		total += rule.Weights.ScraperSignature
		reasons = append(reasons, fmt.Sprintf("scraper signature: %s", scraperToken))
	}

	rateHit := false
	if budget, ok := e.rules.RateBudgets[class]; ok {
		observed := e.stores.Windows.Observe(client, class, now, budget.Window)
		if score, rr := check.RateViolation(class, observed, budget, rule.Weights); score > 0 {
			total += score
			reasons = append(reasons, rr...)
			rateHit = true
		}
	}

	anomalyScore, anomalyReasons := check.Anomaly(fp, rule.Weights)
	total += anomalyScore
	reasons = append(reasons, anomalyReasons...)

	counts := make(map[dataType.RequestClass]int64, len(e.rules.RateBudgets))
	for cl, budget := range e.rules.RateBudgets {
		counts[cl] = e.stores.Windows.Count(client, cl, now, budget.Window)
	}
	behaviorScore, behaviorReasons := check.Behavior(counts, *rule)
	total += behaviorScore
	reasons = append(reasons, behaviorReasons...)

	if e.stores.Ledger.Get(client) > rule.SuspicionThreshold {
		total += rule.Weights.PreviouslySuspicious
		reasons = append(reasons, "client was previously flagged as suspicious")
	}

	result := dataType.BotDetectionResult{
		Confidence:      min(total, 100),
		Reasons:         reasons,
		FingerprintHash: hash,
		Category:        dataType.CategoryNone,
		Action:          dataType.ActionAllow,
	}

	switch {
	case total >= rule.Thresholds.Block:
		result.Action = dataType.ActionBlock
		result.IsBot = true
		result.Category = e.categorize(fp.UserAgent, scraperHit, rateHit)
		e.stores.Ledger.Increment(client, rule.SuspicionOnBlock)
		e.recordAudit(client, "high", strings.Join(reasons, "; "), now)
		if rule.AutoBlock {
			e.stores.Blocklist.Block(client, fmt.Sprintf("auto-blocked at score %d", total), now)
		}
	case total >= rule.Thresholds.Challenge:
		result.Action = dataType.ActionChallenge
		result.IsBot = true
		result.Category = dataType.CategoryAutomation
	case total >= rule.Thresholds.Monitor:
		e.stores.Ledger.Increment(client, rule.SuspicionOnMonitor)
	}

	return e.finish(client, result, now)
}

func (e *Engine) finish(client string, result dataType.BotDetectionResult, now time.Time) dataType.BotDetectionResult {
	e.stores.Cache.Set(result.FingerprintHash, result, now)
	e.countDecision(result.Action, false)
	e.logger.Debug("classified request",
		zap.String("client", client),
		zap.String("action", string(result.Action)),
		zap.Int("confidence", result.Confidence),
		zap.String("category", string(result.Category)),
	)
	return result
}

// categorize picks the category that explains most of the score.
func (e *Engine) categorize(userAgent string, scraperHit, rateHit bool) dataType.BotCategory {
	switch {
	case scraperHit:
		return dataType.CategoryScraper
	case utils.LooksLikeCrawler(userAgent):
		return dataType.CategoryCrawler
	case rateHit:
		return dataType.CategoryCrawler
	default:
		return dataType.CategoryAutomation
	}
}

// IssueChallenge creates a verification challenge for the client.
func (e *Engine) IssueChallenge(client string) (string, string) {
	return e.challenges.Issue(client)
}

// VerifyChallenge validates the echoed token; success is single use
// and lowers the client's suspicion score.
func (e *Engine) VerifyChallenge(client, submitted string) bool {
	ok := e.challenges.Verify(client, submitted)
	if ok {
		e.stores.Cache.Purge()
	}
	return ok
}

// GeneratePricingToken binds a fare quote to its search context.
func (e *Engine) GeneratePricingToken(origin, destination, date, sessionID string) string {
	return e.pricing.Generate(origin, destination, date, sessionID)
}

// VerifyPricingToken checks a quote token against the acceptance window.
func (e *Engine) VerifyPricingToken(tok, origin, destination, date, sessionID string) bool {
	return e.pricing.Verify(tok, origin, destination, date, sessionID)
}

// BlockClient adds the client to the deny-set with a max-severity
// audit record.
func (e *Engine) BlockClient(client, reason string) {
	now := e.clock()
	e.stores.Blocklist.Block(client, reason, now)
	e.recordAudit(client, "critical", fmt.Sprintf("client blocked: %s", reason), now)
	e.stores.Cache.Purge()
	e.logger.Info("client blocked", zap.String("client", client), zap.String("reason", reason))
}

// UnblockClient is a full pardon: deny-set entry, suspicion score and
// rate history are all erased, so the client is indistinguishable from
// one with no history.
func (e *Engine) UnblockClient(client string) bool {
	existed := e.stores.Blocklist.Unblock(client)
	e.stores.Ledger.Remove(client)
	e.stores.Windows.Reset(client)
	e.stores.Cache.Purge()
	if existed {
		e.logger.Info("client unblocked", zap.String("client", client))
	}
	return existed
}

// GetStats returns the monitoring snapshot.
func (e *Engine) GetStats() Stats {
	return Stats{
		BlockedCount:      e.stores.Blocklist.Count(),
		SuspiciousCount:   e.stores.Ledger.Count(),
		PendingChallenges: e.challenges.Pending(),
	}
}

// RecentAudit returns up to n recent suspicious-activity events,
// newest first.
func (e *Engine) RecentAudit(n int) []dataType.AuditEvent {
	return e.audit.Recent(n)
}

func (e *Engine) recordAudit(client, severity, reason string, now time.Time) {
	event := dataType.AuditEvent{
		ID:       uuid.NewString(),
		Client:   client,
		Severity: severity,
		Reason:   reason,
		At:       now,
	}
	e.audit.Append(event)
	e.logger.Info("suspicious activity",
		zap.String("event_id", event.ID),
		zap.String("client", client),
		zap.String("severity", severity),
		zap.String("reason", reason),
	)
}

func (e *Engine) countDecision(action dataType.Action, cached bool) {
	if e.metrics != nil {
		e.metrics.countDecision(action, cached)
	}
}
