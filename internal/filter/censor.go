// Package filter masks forbidden words in chat text.
package filter

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// DefaultMask replaces every rune of a forbidden word.
const DefaultMask = '*'

// Censor finds forbidden words with an Aho-Corasick automaton. Matching
// ignores case, punctuation between letters and common leet substitutions.
// A nil or empty Censor returns text unchanged.
type Censor struct {
	matcher *goahocorasick.Machine
	mask    rune
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// New builds a censor for words.
func New(words []string, mask rune) (*Censor, error) {
	if mask == 0 {
		mask = DefaultMask
	}
	patterns := lo.FilterMap(lo.Uniq(words), func(w string, _ int) ([]rune, bool) {
		p := normalizeRunes([]rune(strings.TrimSpace(w)))
		return p, len(p) > 0
	})
	if len(patterns) == 0 {
		return &Censor{mask: mask}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("build censor automaton: %w", err)
	}
	return &Censor{matcher: m, mask: mask}, nil
}

//go:embed words/*.txt
var builtinWords embed.FS

// DefaultWords returns the built-in word list.
func DefaultWords() []string {
	data, err := builtinWords.ReadFile("words/en.txt")
	if err != nil {
		return nil
	}
	words, err := parseWords(data)
	if err != nil {
		return nil
	}
	return words
}

// LoadWords reads one word per line from path, skipping blank lines and # comments.
func LoadWords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read censored words: %w", err)
	}
	return parseWords(data)
}

func parseWords(data []byte) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan censored words: %w", err)
	}
	return lo.Uniq(words), nil
}

// Censor masks every forbidden word in text, keeping surrounding characters.
func (c *Censor) Censor(text string) string {
	if c == nil || c.matcher == nil || text == "" {
		return text
	}

	mapping := normalize(text)
	if len(mapping.normalized) == 0 {
		return text
	}
	spans := c.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return text
	}

	orig := []rune(text)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			orig[i] = c.mask
		}
	}
	return string(orig)
}

func normalize(input string) textMapping {
	orig := []rune(input)
	m := textMapping{
		normalized: make([]rune, 0, len(orig)),
		origIdx:    make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		m.normalized = append(m.normalized, unicode.ToLower(clean))
		m.origIdx = append(m.origIdx, i)
	}
	return m
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps leet substitutes back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
