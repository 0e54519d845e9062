package selfhear

import (
	"reflect"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/normalize"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFilter(opts ...Option) (*Filter, *fakeClock) {
	c := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(append([]Option{WithClock(c.now)}, opts...)...), c
}

// TestFilterExactEcho verifies a transcript identical to a just-spoken
// sentence is removed entirely.
func TestFilterExactEcho(t *testing.T) {
	f, _ := newTestFilter()
	f.RecordSpoken("rest for thirty seconds")
	if got := f.Filter("rest for thirty seconds"); got != "" {
		t.Errorf("Filter = %q, want empty", got)
	}
}

// TestFilterEmptyBuffer verifies transcripts pass through untouched when
// nothing was spoken.
func TestFilterEmptyBuffer(t *testing.T) {
	f, _ := newTestFilter()
	if got := f.Filter("six"); got != "six" {
		t.Errorf("Filter = %q, want %q", got, "six")
	}
	if got := f.Filter("Six, please!"); got != "Six, please!" {
		t.Errorf("Filter = %q, want input unchanged", got)
	}
}

// TestFilterPartialEcho verifies only the echoed words are removed and the
// user's words survive, punctuation and case stripped.
func TestFilterPartialEcho(t *testing.T) {
	f, _ := newTestFilter()
	f.RecordSpoken("Great form! Keep pushing!")
	if got := f.Filter("keep pushing, seven"); got != "seven" {
		t.Errorf("Filter = %q, want %q", got, "seven")
	}
}

// TestFilterWindowExpiry verifies sentences older than the window stop
// filtering.
func TestFilterWindowExpiry(t *testing.T) {
	f, c := newTestFilter()
	f.RecordSpoken("ready for set two")
	c.advance(2999 * time.Millisecond)
	if got := f.Filter("ready"); got != "" {
		t.Errorf("inside window: Filter = %q, want empty", got)
	}
	c.advance(2 * time.Millisecond)
	if got := f.Filter("ready"); got != "ready" {
		t.Errorf("after window: Filter = %q, want %q", got, "ready")
	}
	if n := f.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0 after purge", n)
	}
}

// TestFilterUnionOfSentences verifies words from every buffered sentence
// count as echo.
func TestFilterUnionOfSentences(t *testing.T) {
	f, c := newTestFilter()
	f.RecordSpoken("Let's go!")
	c.advance(time.Second)
	f.RecordSpoken("Tell me your rep count.")
	if got := f.Filter("go tell me 3"); got != "3" {
		t.Errorf("Filter = %q, want %q", got, "3")
	}
}

// TestFilterSingleWordCollision documents the known limitation: a lone user
// word that matches a word the coach just said is dropped.
func TestFilterSingleWordCollision(t *testing.T) {
	f, _ := newTestFilter()
	f.RecordSpoken("Ready for Set 2?")
	if got := f.Filter("ready"); got != "" {
		t.Errorf("Filter = %q, want empty (accepted false negative)", got)
	}
}

// TestFilterCanon verifies spelled and digit forms compare equal when a
// canonicalizer is configured, without merging homophones.
func TestFilterCanon(t *testing.T) {
	f, _ := newTestFilter(WithCanon(normalize.Digit))
	f.RecordSpoken("7 ✓ Keep pushing!")
	if got := f.Filter("seven"); got != "" {
		t.Errorf("Filter(seven) = %q, want empty", got)
	}

	f.Reset()
	f.RecordSpoken("Ready for Set 2?")
	if got := f.Filter("4"); got != "4" {
		t.Errorf("Filter(4) = %q, want %q", got, "4")
	}
}

// TestWords verifies tokenization.
func TestWords(t *testing.T) {
	got := Words("🔥 you're in the zone!  (nice)")
	want := []string{"you're", "in", "the", "zone", "nice"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}
