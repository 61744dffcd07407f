// Package vocab snaps near-miss transcript words to a clinical glossary.
//
// Speech-to-text engines routinely mangle anatomical terms ("tricono" for
// "trígono", "hiper plasia" for "hiperplasia"). A [Corrector] scans the
// transcript with n-gram windows and replaces a window with a glossary term
// when the two sound alike and are spelled alike:
//
//  1. Phonetic filter: the Double Metaphone codes of the window and of the
//     term must share at least one code.
//  2. Jaro-Winkler ranking: among phonetic candidates the term with the
//     highest similarity wins, provided it reaches the phonetic threshold.
//     Without a phonetic candidate, a term may still win on similarity alone
//     when it reaches the stricter fuzzy threshold.
//
// A near miss must also agree with the term in number and gender:
// "divertículos" and "trabeculada" are left alone by the terms "divertículo"
// and "trabeculado".
//
// Comparison is case- and accent-insensitive. Windows are tried longest
// first so multi-word terms take precedence over single-word matches.
// Punctuation around a window and the whitespace between untouched words are
// preserved.
package vocab

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.92
	defaultMinLength         = 4
)

// Correction records one replacement made by [Corrector.Correct].
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	// Method is "phonetic", "fuzzy" or "exact" (same word, different
	// casing or accents).
	Method string `json:"method"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that
// does not sound like the window. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// WithMinLength sets the minimum length, in letters, of a window eligible
// for correction. Shorter words (articles, prepositions) are never touched.
// Default: 4.
func WithMinLength(n int) Option {
	return func(c *Corrector) {
		c.minLength = n
	}
}

// Corrector applies glossary corrections to transcripts. The glossary can be
// swapped at any time with [Corrector.SetTerms]; all methods are safe for
// concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int

	terms atomic.Pointer[termSet]
}

// New returns a Corrector for the given glossary.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(c)
	}
	c.SetTerms(terms)
	return c
}

// SetTerms replaces the glossary. Blank and duplicate entries are ignored.
func (c *Corrector) SetTerms(terms []string) {
	c.terms.Store(prepare(terms))
}

// Terms returns the current glossary.
func (c *Corrector) Terms() []string {
	ts := c.terms.Load()
	out := make([]string, len(ts.entries))
	for i, e := range ts.entries {
		out[i] = e.term
	}
	return out
}

// Correct returns text with glossary corrections applied and the list of
// corrections made, in order of appearance.
func (c *Corrector) Correct(text string) (string, []Correction) {
	ts := c.terms.Load()
	if len(ts.entries) == 0 || strings.TrimSpace(text) == "" {
		return text, nil
	}
	toks := tokenize(text)
	if len(toks) == 0 {
		return text, nil
	}

	// Windows may span one more token than the longest term so that a term
	// split in two by the recogniser can be rejoined.
	maxWords := ts.maxWords + 1

	var (
		out         strings.Builder
		corrections []Correction
		prevEnd     int
	)
	for i := 0; i < len(toks); {
		maxN := min(maxWords, len(toks)-i)

		matched := false
		for n := maxN; n >= 1; n-- {
			w, ok := newWindow(text, toks[i:i+n])
			if !ok {
				continue
			}
			term, conf, method, ok := c.match(w, ts)
			if !ok {
				continue
			}
			replacement := matchCase(w.core, term)
			out.WriteString(text[prevEnd:w.start])
			out.WriteString(replacement)
			prevEnd = w.end
			if replacement != w.core {
				corrections = append(corrections, Correction{
					Original:   w.core,
					Corrected:  replacement,
					Confidence: conf,
					Method:     method,
				})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	out.WriteString(text[prevEnd:])
	return out.String(), corrections
}

// match finds the best glossary term for w.
func (c *Corrector) match(w window, ts *termSet) (term string, confidence float64, method string, ok bool) {
	if utf8.RuneCountInString(w.joined) < c.minLength {
		return "", 0, "", false
	}

	type candidate struct {
		entry    *entry
		score    float64
		phonetic bool
	}
	var best candidate

	codes := codesFor(w.joined)
	for i := range ts.entries {
		e := &ts.entries[i]
		if w.folded == e.folded || w.joined == e.joined {
			return e.term, 1, "exact", true
		}
		// A window longer than the term only matches when it spells the term
		// exactly; otherwise a trailing short word would be swallowed.
		if w.words > e.words || !comparableLength(w.joined, e.joined) {
			continue
		}
		if !inflectionAgrees(w.folded, e.folded) {
			continue
		}

		score := matchr.JaroWinkler(w.folded, e.folded, false)
		if s := matchr.JaroWinkler(w.joined, e.joined, false); s > score {
			score = s
		}

		if codesOverlap(codes, e.codes) {
			if score >= c.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{entry: e, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= c.fuzzyThreshold && score > best.score {
			best = candidate{entry: e, score: score}
		}
	}

	if best.entry == nil {
		return "", 0, "", false
	}
	method = "fuzzy"
	if best.phonetic {
		method = "phonetic"
	}
	return best.entry.term, best.score, method, true
}

// ── Glossary ────────────────────────────────────────────────────────────────

type entry struct {
	term   string
	folded string // lower case, accents removed, single spaces
	joined string // folded without spaces
	words  int
	codes  map[string]struct{}
}

type termSet struct {
	entries  []entry
	maxWords int
}

func prepare(terms []string) *termSet {
	ts := &termSet{}
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		folded := fold(t)
		if seen[folded] {
			continue
		}
		seen[folded] = true
		joined := strings.ReplaceAll(folded, " ", "")
		ts.entries = append(ts.entries, entry{
			term:   t,
			folded: folded,
			joined: joined,
			words:  len(strings.Fields(t)),
			codes:  codesFor(joined),
		})
		ts.maxWords = max(ts.maxWords, len(strings.Fields(t)))
	}
	return ts
}

// fold lower-cases s and strips combining marks.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

func codesFor(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(s)
	if p != "" {
		codes[p] = struct{}{}
	}
	if sec != "" {
		codes[sec] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// comparableLength rejects pairs whose lengths differ by more than a third of
// the longer one.
func comparableLength(a, b string) bool {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return diff*3 <= max(la, lb)
}

// inflectionAgrees reports whether two folded phrases carry the same plural
// and gender endings. Phrases with the same word count are compared word by
// word; otherwise only the last words are compared.
func inflectionAgrees(a, b string) bool {
	aw, bw := strings.Fields(a), strings.Fields(b)
	if len(aw) == 0 || len(bw) == 0 {
		return true
	}
	if len(aw) != len(bw) {
		aw, bw = aw[len(aw)-1:], bw[len(bw)-1:]
	}
	for i := range aw {
		pa, ga := inflection(aw[i])
		pb, gb := inflection(bw[i])
		if pa != pb {
			return false
		}
		if ga != 0 && gb != 0 && ga != gb {
			return false
		}
	}
	return true
}

// inflection returns whether a folded Spanish word looks plural and its
// gender vowel ('o', 'a' or 0 when the ending carries no gender).
func inflection(word string) (plural bool, gender byte) {
	if len(word) > 3 && word[len(word)-1] == 's' {
		plural = true
		word = word[:len(word)-1]
		// Consonant plurals: "esfínteres", "vesicales".
		if len(word) > 2 && word[len(word)-1] == 'e' && !isVowel(word[len(word)-2]) {
			return plural, 0
		}
	}
	switch word[len(word)-1] {
	case 'o', 'a':
		gender = word[len(word)-1]
	}
	return plural, gender
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// matchCase capitalises term when the original starts with an upper-case
// letter and the term does not.
func matchCase(original, term string) string {
	o, _ := utf8.DecodeRuneInString(original)
	t, size := utf8.DecodeRuneInString(term)
	if unicode.IsUpper(o) && unicode.IsLower(t) {
		return string(unicode.ToUpper(t)) + term[size:]
	}
	return term
}

// ── Tokens and windows ──────────────────────────────────────────────────────

// token is a whitespace-delimited piece of the input. core is the byte range
// inside it without leading and trailing punctuation.
type token struct {
	start, end         int
	coreStart, coreEnd int
}

func tokenize(text string) []token {
	var toks []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, newToken(text, start, i))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, newToken(text, start, len(text)))
	}
	return toks
}

func newToken(text string, start, end int) token {
	s := text[start:end]
	lead := len(s) - len(strings.TrimLeftFunc(s, isPunct))
	trail := len(strings.TrimRightFunc(s, isPunct))
	if trail < lead {
		trail = lead
	}
	return token{start: start, end: end, coreStart: start + lead, coreEnd: start + trail}
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// window is a run of tokens considered for replacement. start and end bound
// the replaced text: from the core of the first token to the core of the last.
type window struct {
	start, end int
	words      int
	core       string
	folded     string
	joined     string
}

// newWindow builds a window over toks. A multi-token window is rejected when
// punctuation separates its tokens.
func newWindow(text string, toks []token) (window, bool) {
	first, last := toks[0], toks[len(toks)-1]
	for i, t := range toks {
		if t.coreStart == t.coreEnd {
			return window{}, false
		}
		if i > 0 && t.coreStart != t.start {
			return window{}, false
		}
		if i < len(toks)-1 && t.coreEnd != t.end {
			return window{}, false
		}
	}
	core := text[first.coreStart:last.coreEnd]
	folded := fold(core)
	return window{
		start:  first.coreStart,
		end:    last.coreEnd,
		words:  len(toks),
		core:   core,
		folded: folded,
		joined: strings.ReplaceAll(folded, " ", ""),
	}, true
}
