package token

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/visa2any/fareguard/internal/dataType"
)

// ChallengeStore is the persistence the verifier needs; satisfied by
// the in-memory store and the redis-backed one.
type ChallengeStore interface {
	Put(client string, rec dataType.ChallengeRecord)
	Get(client string) (dataType.ChallengeRecord, bool)
	Delete(client string)
	Count() int
}

// SuspicionReducer rewards a client that completes a challenge.
type SuspicionReducer interface {
	Decrement(client string, amount int) int
}

// ChallengeService issues and verifies the short-lived token exchange
// offered to borderline clients instead of an outright block.
type ChallengeService struct {
	store  ChallengeStore
	ledger SuspicionReducer
	clock  dataType.Clock
	rule   dataType.ChallengeRule
}

func NewChallengeService(store ChallengeStore, ledger SuspicionReducer, clock dataType.Clock, rule dataType.ChallengeRule) *ChallengeService {
	return &ChallengeService{store: store, ledger: ledger, clock: clock, rule: rule}
}

// Issue creates a fresh challenge for the client. The returned token
// is the secret half the client must echo back; the challenge string
// is what the verification page renders. Reissuing replaces any
// pending record.
func (s *ChallengeService) Issue(client string) (string, string) {
	tok := randomToken()
	challenge := uuid.NewString()
	s.store.Put(client, dataType.ChallengeRecord{
		Token:   tok,
		Expires: s.clock().Add(durationSeconds(s.rule.TTL)),
	})
	return tok, challenge
}

// Verify consumes the pending challenge. Unknown client or expired
// record yields false; expiry also removes the stale record. A match
// is single use and lowers the client's suspicion score.
func (s *ChallengeService) Verify(client, submitted string) bool {
	rec, ok := s.store.Get(client)
	if !ok {
		return false
	}
	if s.clock().After(rec.Expires) {
		s.store.Delete(client)
		return false
	}
	if rec.Token != submitted {
		return false
	}
	s.store.Delete(client)
	s.ledger.Decrement(client, s.rule.Reward)
	return true
}

// Pending reports how many unverified challenges are outstanding.
func (s *ChallengeService) Pending() int {
	return s.store.Count()
}

func randomToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back
		// to an unpredictable value anyway rather than panicking.
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
