// Package normalize turns raw speech transcripts into digits and command
// words, resolving the phonetic confusions speech recognizers commonly make.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/claude/repcoach/internal/models"
)

// numberWords maps spelled numbers and their usual mishearings to digits.
var numberWords = map[string]string{
	"zero": "0", "oh": "0",
	"one": "1", "won": "1", "wan": "1",
	"two": "2", "to": "2", "too": "2", "tu": "2",
	"three": "3", "tree": "3", "free": "3", "thee": "3",
	"four": "4", "for": "4", "fore": "4", "floor": "4",
	"five": "5", "fife": "5", "hive": "5",
	"six": "6", "sex": "6", "sicks": "6",
	"seven": "7", "sven": "7",
	"eight": "8", "ate": "8", "ait": "8",
	"nine": "9", "nein": "9", "mine": "9",
	"ten": "10", "tin": "10",
	"eleven": "11", "leaven": "11",
	"twelve": "12", "twelfth": "12",
	"thirteen":  "13",
	"fourteen":  "14",
	"fifteen":   "15",
	"sixteen":   "16",
	"seventeen": "17",
	"eighteen":  "18",
	"nineteen":  "19",
	"twenty":    "20",
}

// DefaultMappings returns the built-in number table as phonetic mappings,
// sorted by canonical value then alternative. Used to seed and reset a
// user's mapping list.
func DefaultMappings() []models.PhoneticMapping {
	out := make([]models.PhoneticMapping, 0, len(numberWords))
	for alt, canon := range numberWords {
		out = append(out, models.PhoneticMapping{
			Canonical:   canon,
			Alternative: alt,
			Category:    models.CategoryNumber,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].Canonical)
		b, _ := strconv.Atoi(out[j].Canonical)
		if a != b {
			return a < b
		}
		return out[i].Alternative < out[j].Alternative
	})
	return out
}

// Normalizer rewrites transcripts using the built-in table plus any
// user-defined mappings. A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	numbers  replacer
	commands replacer
}

// New builds a Normalizer. Number mappings override built-in entries with
// the same alternative; command mappings rewrite words into the command
// vocabulary ("dun" -> "done").
func New(extra ...models.PhoneticMapping) *Normalizer {
	nums := make(map[string]string, len(numberWords)+len(extra))
	for alt, canon := range numberWords {
		nums[alt] = canon
	}
	cmds := make(map[string]string)
	for _, m := range extra {
		alt := strings.ToLower(strings.TrimSpace(m.Alternative))
		canon := strings.ToLower(strings.TrimSpace(m.Canonical))
		if alt == "" || canon == "" {
			continue
		}
		if m.Category == models.CategoryCommand {
			cmds[alt] = canon
			delete(nums, alt)
			continue
		}
		nums[alt] = canon
	}
	return &Normalizer{numbers: newReplacer(nums), commands: newReplacer(cmds)}
}

// Normalize lowercases raw and replaces whole-word matches, command
// mappings first. Text without matches is returned lowercased and
// otherwise unchanged.
func (n *Normalizer) Normalize(raw string) string {
	return n.numbers.replace(n.commands.replace(strings.ToLower(raw)))
}

// Canon maps a single lowercase word to its canonical value, or returns it
// unchanged.
func (n *Normalizer) Canon(word string) string {
	if v, ok := n.commands.table[word]; ok {
		return v
	}
	if v, ok := n.numbers.table[word]; ok {
		return v
	}
	return word
}

type replacer struct {
	table map[string]string
	re    *regexp.Regexp
}

func newReplacer(table map[string]string) replacer {
	if len(table) == 0 {
		return replacer{table: table}
	}
	// Longest first so multi-word alternatives win over their prefixes.
	words := make([]string, 0, len(table))
	for w := range table {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return replacer{
		table: table,
		re:    regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

func (r replacer) replace(s string) string {
	if r.re == nil {
		return s
	}
	return r.re.ReplaceAllStringFunc(s, func(w string) string {
		return r.table[w]
	})
}

// Numbers extracts non-negative integers from a normalized string in spoken
// order. Tokens are split on whitespace and commas.
func Numbers(normalized string) []int {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	var out []int
	for _, f := range fields {
		f = strings.TrimRight(f, ".!?;:")
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Clean lowercases s, replaces punctuation other than apostrophes with
// spaces, and collapses whitespace. "Done." and " done " both clean to "done".
func Clean(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var spelled = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"ten": "10", "eleven": "11", "twelve": "12", "thirteen": "13",
	"fourteen": "14", "fifteen": "15", "sixteen": "16", "seventeen": "17",
	"eighteen": "18", "nineteen": "19", "twenty": "20",
}

// Digit maps a correctly spelled number word to its digits and leaves every
// other word alone. Unlike Canon it ignores homophones such as "for".
func Digit(word string) string {
	if v, ok := spelled[word]; ok {
		return v
	}
	return word
}
