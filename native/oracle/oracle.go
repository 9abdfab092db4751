package oracle

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInvalidRate indicates the upstream feed reported a zero, negative or
	// missing exchange rate.
	ErrInvalidRate = errors.New("oracle: invalid exchange rate")
	// ErrStaleQuote indicates the freshest available quote is older than the
	// configured freshness window.
	ErrStaleQuote = errors.New("oracle: quote outside freshness window")
	// ErrNoQuote indicates the feed has never observed a rate.
	ErrNoQuote = errors.New("oracle: no quote available")
)

// PriceQuote captures the RUSD value of one RNG along with the timestamp
// reported by the upstream oracle and the oracle identifier.
type PriceQuote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// RateString renders the rate using the supplied precision.
func (q PriceQuote) RateString(precision int) string {
	if q.Rate == nil {
		return ""
	}
	if precision < 0 {
		precision = 18
	}
	return q.Rate.FloatString(precision)
}

// PriceOracle resolves the current RNG/RUSD exchange rate.
type PriceOracle interface {
	GetPrice() (PriceQuote, error)
}

// Validate rejects quotes that carry unusable rates or fall outside the
// freshness window relative to now. Failures are surfaced, never defaulted.
func Validate(q PriceQuote, now time.Time, maxAge time.Duration) error {
	if q.Rate == nil || q.Rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	if q.Timestamp.IsZero() {
		return ErrStaleQuote
	}
	if maxAge > 0 && now.Sub(q.Timestamp) > maxAge {
		return ErrStaleQuote
	}
	return nil
}

// ManualFeed is a PriceOracle whose quote is pushed by an operator or by
// tests. It is also the adapter shape used when the host relays an external
// round.
type ManualFeed struct {
	mu     sync.RWMutex
	quote  PriceQuote
	source string
	set    bool
}

// NewManualFeed constructs a feed identified by source.
func NewManualFeed(source string) *ManualFeed {
	return &ManualFeed{source: strings.TrimSpace(source)}
}

// SetPrice records a new observation.
func (f *ManualFeed) SetPrice(rate *big.Rat, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quote := PriceQuote{Timestamp: at, Source: f.source}
	if rate != nil {
		quote.Rate = new(big.Rat).Set(rate)
	}
	f.quote = quote
	f.set = true
}

// GetPrice implements PriceOracle.
func (f *ManualFeed) GetPrice() (PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return PriceQuote{}, ErrNoQuote
	}
	return f.quote.Clone(), nil
}
