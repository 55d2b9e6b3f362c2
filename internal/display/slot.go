// Package display holds the asset display slots the analysis results are
// pushed into, and the export control's visibility.
package display

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// TokenSource produces cache-busting tokens. Consecutive tokens must differ.
type TokenSource interface {
	Next() string
}

// clockTokens issues millisecond timestamps, bumped by one whenever the clock
// has not advanced since the previous token.
type clockTokens struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewClockTokens returns a timestamp-based TokenSource.
func NewClockTokens() TokenSource {
	return NewClockTokensWith(time.Now)
}

// NewClockTokensWith returns a timestamp-based TokenSource reading now.
func NewClockTokensWith(now func() time.Time) TokenSource {
	return &clockTokens{now: now}
}

func (c *clockTokens) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return strconv.FormatInt(ms, 10)
}

// Slot is a single image display. Its source is the last asset URL pushed
// into it, suffixed with a fresh cache-busting token.
type Slot struct {
	mu      sync.RWMutex
	name    string
	tokens  TokenSource
	asset   string
	src     string
	updates int
}

// NewSlot creates an empty slot.
func NewSlot(name string, tokens TokenSource) *Slot {
	return &Slot{name: name, tokens: tokens}
}

// Name returns the slot identifier.
func (s *Slot) Name() string {
	return s.name
}

// Set displays assetURL. The stored source always carries a new token, so
// pushing the same URL twice still produces two distinct sources.
func (s *Slot) Set(assetURL string) string {
	src := CacheBust(assetURL, s.tokens.Next())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.asset = assetURL
	s.src = src
	s.updates++
	return src
}

// Clear empties the slot and resets its update count.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asset = ""
	s.src = ""
	s.updates = 0
}

// Source returns the cache-busted source, empty if never set.
func (s *Slot) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

// Asset returns the last asset URL without its token.
func (s *Slot) Asset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asset
}

// Updates returns how many times the slot was set.
func (s *Slot) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// CacheBust appends t=token to assetURL as a query parameter.
func CacheBust(assetURL, token string) string {
	sep := "?"
	if strings.Contains(assetURL, "?") {
		sep = "&"
	}
	return assetURL + sep + "t=" + token
}
