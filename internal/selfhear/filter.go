// Package selfhear suppresses the coach's own synthesized speech when an
// open microphone picks it up again.
//
// The filter keeps the sentences spoken in the last few seconds and removes
// every transcript word that also appears in one of them. Matching is by
// word set, so a genuine one-word reply that repeats a word the coach just
// said is dropped as well.
package selfhear

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

// DefaultWindow is how long a spoken sentence stays eligible for matching.
const DefaultWindow = 3 * time.Second

type record struct {
	text     string
	words    []string
	spokenAt time.Time
}

// Filter holds the rolling buffer of recently spoken sentences.
type Filter struct {
	window time.Duration
	now    func() time.Time
	canon  func(string) string

	mu     sync.Mutex
	spoken []record
}

// Option configures a Filter.
type Option func(*Filter)

// WithWindow sets the retention window.
func WithWindow(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.window = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// WithCanon compares words through fn, so "seven" spoken matches "7" heard.
func WithCanon(fn func(string) string) Option {
	return func(f *Filter) { f.canon = fn }
}

// New creates a Filter with a 3 second window.
func New(opts ...Option) *Filter {
	f := &Filter{
		window: DefaultWindow,
		now:    time.Now,
		canon:  func(s string) string { return s },
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// RecordSpoken remembers text as spoken now.
func (f *Filter) RecordSpoken(text string) {
	lower := strings.ToLower(text)
	words := Words(lower)
	if len(words) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, record{text: lower, words: words, spokenAt: f.now()})
}

// Filter strips words attributable to recent speech. An empty result means
// the whole transcript was an echo and must not be treated as input.
func (f *Filter) Filter(transcript string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.purgeLocked()
	if len(f.spoken) == 0 {
		return transcript
	}

	echo := make(map[string]struct{})
	for _, r := range f.spoken {
		for _, w := range r.words {
			echo[f.canon(w)] = struct{}{}
		}
	}

	var kept []string
	for _, w := range Words(strings.ToLower(transcript)) {
		if _, ok := echo[f.canon(w)]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Len reports how many sentences are still inside the window.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeLocked()
	return len(f.spoken)
}

// Reset drops all remembered speech.
func (f *Filter) Reset() {
	f.mu.Lock()
	f.spoken = nil
	f.mu.Unlock()
}

func (f *Filter) purgeLocked() {
	cutoff := f.now().Add(-f.window)
	i := 0
	for i < len(f.spoken) && f.spoken[i].spokenAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		f.spoken = append(f.spoken[:0], f.spoken[i:]...)
	}
}

// Words splits s into lowercase-preserving tokens with surrounding
// punctuation removed. Apostrophes inside words are kept.
func Words(s string) []string {
	var out []string
	for _, field := range strings.Fields(s) {
		w := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
