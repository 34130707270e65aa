package token

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"time"

	"github.com/visa2any/fareguard/internal/dataType"
)

const pricingTokenLength = 32

// PricingService signs time-windowed tokens that bind a fare quote to
// the search context it was produced for. No token state is kept;
// verification recomputes candidate signatures backward across the
// acceptance window. Security rests on the secret and the coarseness
// of the time step.
type PricingService struct {
	secret []byte
	clock  dataType.Clock
	rule   dataType.PricingTokenRule
}

func NewPricingService(secret string, clock dataType.Clock, rule dataType.PricingTokenRule) *PricingService {
	return &PricingService{secret: []byte(secret), clock: clock, rule: rule}
}

// Generate signs the search context at the current time step.
func (s *PricingService) Generate(origin, destination, date, sessionID string) string {
	now := s.clock().Unix()
	return s.sign(origin, destination, date, sessionID, now-now%s.rule.Step)
}

// Verify recomputes candidate signatures at step granularity from the
// current step back through the acceptance window, returning true on
// the first match. A malformed token simply matches nothing.
func (s *PricingService) Verify(tok, origin, destination, date, sessionID string) bool {
	now := s.clock().Unix()
	oldest := now - s.rule.Window
	for ts := now - now%s.rule.Step; ts >= oldest; ts -= s.rule.Step {
		if hmac.Equal([]byte(s.sign(origin, destination, date, sessionID, ts)), []byte(tok)) {
			return true
		}
	}
	return false
}

func (s *PricingService) sign(origin, destination, date, sessionID string, step int64) string {
	mac := hmac.New(sha512.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%s|%d", origin, destination, date, sessionID, step)
	return fmt.Sprintf("%x", mac.Sum(nil))[:pricingTokenLength]
}

func durationSeconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
