// Package classify maps raw topic text to a tag set using curated keyword lexicons.
// Classification is pure: the same text always yields the same tags and confidence.
package classify

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

var (
	// 2330.TW, 6488.TWO
	twSuffixPattern = regexp.MustCompile(`\b(\d{4,6})\.TWO?\b`)
	// 台積電(2330), (2330)
	parenCodePattern = regexp.MustCompile(`[(（](\d{4,6})[)）]`)
	// $NVDA
	cashtagPattern = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
)

// Classifier matches text against a Lexicon
type Classifier struct {
	persona     []vocab
	industry    []vocab
	event       []vocab
	instruments []vocab
}

type vocab struct {
	tag      string
	keywords []string
}

// New builds a Classifier from lex
func New(lex Lexicon) *Classifier {
	return &Classifier{
		persona:     compile(lex.Persona),
		industry:    compile(lex.Industry),
		event:       compile(lex.Event),
		instruments: compile(lex.Instruments),
	}
}

// NewDefault builds a Classifier over DefaultLexicon
func NewDefault() *Classifier {
	return New(DefaultLexicon())
}

func compile(m map[string][]string) []vocab {
	out := make([]vocab, 0, len(m))
	for tag, kws := range m {
		norm := make([]string, 0, len(kws))
		for _, kw := range kws {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				norm = append(norm, kw)
			}
		}
		out = append(out, vocab{tag: types.NormalizeTag(tag), keywords: norm})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tag < out[j].tag })
	return out
}

// Classify returns the tag set for a topic title and optional body, plus a confidence in [0,1].
// Title matches weigh twice as much as body matches. No match yields an empty set and 0.
func (c *Classifier) Classify(title, body string) (types.TagSet, float64) {
	t := newText(title)
	b := newText(body)

	var set types.TagSet
	total := 0

	match := func(vocabs []vocab) []string {
		var tags []string
		for _, v := range vocabs {
			score := 0
			for _, kw := range v.keywords {
				score += 2*t.count(kw) + b.count(kw)
			}
			if score > 0 {
				tags = append(tags, v.tag)
				total += score
			}
		}
		return tags
	}

	set.PersonaTags = match(c.persona)
	set.IndustryTags = match(c.industry)
	set.EventTags = match(c.event)

	instruments := make(map[string]bool)
	for _, tag := range match(c.instruments) {
		instruments[tag] = true
	}
	for _, code := range extractCodes(title) {
		instruments[code] = true
		total += 2
	}
	for _, code := range extractCodes(body) {
		if !instruments[code] {
			total++
		}
		instruments[code] = true
	}
	for code := range instruments {
		set.InstrumentTags = append(set.InstrumentTags, code)
	}
	sort.Strings(set.InstrumentTags)

	return set, confidence(total)
}

// confidence saturates toward 1 as evidence accumulates
func confidence(score int) float64 {
	if score <= 0 {
		return 0
	}
	c := float64(score) / float64(score+4)
	return math.Round(c*100) / 100
}

func extractCodes(s string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{twSuffixPattern, parenCodePattern, cashtagPattern} {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			out = append(out, strings.ToLower(m[1]))
		}
	}
	return out
}

// text is lower-cased input with its word tokens precomputed
type text struct {
	lower  string
	tokens map[string]int
}

func newText(s string) text {
	lower := strings.ToLower(s)
	tokens := make(map[string]int)
	for _, word := range strings.Fields(lower) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/'
		})
		if word != "" {
			tokens[word]++
		}
	}
	return text{lower: lower, tokens: tokens}
}

// count returns how often kw occurs. Single ASCII words must match a whole token so short
// keywords like "ev" do not fire inside "every"; phrases and CJK keywords match as substrings.
func (t text) count(kw string) int {
	if t.lower == "" {
		return 0
	}
	if isASCIIWord(kw) {
		return t.tokens[kw]
	}
	return strings.Count(t.lower, kw)
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
