// Package filename allocates collision-free, filesystem-safe file names
// for pages and data blocks.
package filename

import (
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/wikistore/internal/apperr"
)

const (
	// DefaultMaxLength bounds a full file name (suffix included) in bytes.
	DefaultMaxLength = 120
	// MaxAttempts is how many candidates Allocate tries before giving up.
	MaxAttempts = 30
	// counterCandidates are tried before switching to random suffixes.
	counterCandidates = 20

	escapeChar = '~'
)

// Options controls how candidates are derived from an identifier.
type Options struct {
	Suffix    string
	ASCIIOnly bool
	MaxLength int
}

func (o Options) maxLength() int {
	if o.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return o.MaxLength
}

var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// Candidates yields file names for identifier on demand. The first candidate
// is the escaped identifier itself; later ones carry a disambiguator. The
// sequence is infinite and every call starts from the beginning.
func Candidates(identifier string, opts Options) iter.Seq[string] {
	return func(yield func(string) bool) {
		base := Escape(identifier, opts.ASCIIOnly)
		if !yield(fit(base, "", opts.Suffix, opts.maxLength())) {
			return
		}
		for i := 1; ; i++ {
			var dis string
			if i <= counterCandidates {
				dis = string(escapeChar) + string(escapeChar) + strconv.Itoa(i)
			} else {
				dis = string(escapeChar) + string(escapeChar) + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
			}
			if !yield(fit(base, dis, opts.Suffix, opts.maxLength())) {
				return
			}
		}
	}
}

// Allocate returns the first candidate for which taken reports false.
func Allocate(identifier string, opts Options, taken func(name string) (bool, error)) (string, error) {
	attempts := 0
	for name := range Candidates(identifier, opts) {
		if attempts == MaxAttempts {
			break
		}
		attempts++
		used, err := taken(name)
		if err != nil {
			return "", err
		}
		if !used {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q after %d attempts", apperr.ErrAllocationExhausted, identifier, MaxAttempts)
}

// Escape replaces characters that are unsafe in file names with ~XXXX
// sequences (four upper-case hex digits, or ~uXXXXXX beyond the BMP).
// With asciiOnly every non-ASCII rune is escaped as well.
func Escape(identifier string, asciiOnly bool) string {
	s := norm.NFC.String(identifier)
	if s == "" {
		return string(escapeChar)
	}
	var b strings.Builder
	for i, r := range s {
		last := i+utf8.RuneLen(r) == len(s)
		if safeRune(r, asciiOnly) && !(i == 0 && r == '.') && !(last && (r == '.' || r == ' ')) {
			b.WriteRune(r)
			continue
		}
		writeEscape(&b, r)
	}
	out := b.String()
	if _, ok := reservedNames[strings.ToLower(out)]; ok {
		var rb strings.Builder
		first, size := utf8.DecodeRuneInString(out)
		writeEscape(&rb, first)
		rb.WriteString(out[size:])
		out = rb.String()
	}
	return out
}

func writeEscape(b *strings.Builder, r rune) {
	if r > 0xFFFF {
		fmt.Fprintf(b, "%cu%06X", escapeChar, r)
		return
	}
	fmt.Fprintf(b, "%c%04X", escapeChar, r)
}

func safeRune(r rune, asciiOnly bool) bool {
	if r < utf8.RuneSelf {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return true
		}
		return strings.ContainsRune(" -_.,()[]!'+=@#$&;", r)
	}
	if asciiOnly {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

var disambiguatorRe = regexp.MustCompile(`~~[0-9a-z]+$`)

// Unescape reverses Escape on a file name stripped of its suffix.
// Disambiguators added by Candidates are dropped.
func Unescape(name string) (string, bool) {
	name = disambiguatorRe.ReplaceAllString(name, "")
	if name == string(escapeChar) {
		return "", true
	}
	var b strings.Builder
	for i := 0; i < len(name); {
		if name[i] != escapeChar {
			r, size := utf8.DecodeRuneInString(name[i:])
			b.WriteRune(r)
			i += size
			continue
		}
		width := 4
		start := i + 1
		if start < len(name) && name[start] == 'u' {
			width = 6
			start++
		}
		if start+width > len(name) {
			return "", false
		}
		v, err := strconv.ParseUint(name[start:start+width], 16, 32)
		if err != nil {
			return "", false
		}
		b.WriteRune(rune(v))
		i = start + width
	}
	return b.String(), true
}

// fit truncates base so that base+dis+suffix stays within max bytes,
// never splitting a rune or an escape sequence.
func fit(base, dis, suffix string, max int) string {
	budget := max - len(dis) - len(suffix)
	if budget < 1 {
		budget = 1
	}
	if len(base) <= budget {
		return base + dis + suffix
	}
	cut := 0
	for i := 0; i < len(base); {
		next := i + tokenLen(base[i:])
		if next > budget {
			break
		}
		cut = next
		i = next
	}
	return base[:cut] + dis + suffix
}

func tokenLen(s string) int {
	if s[0] == escapeChar {
		if len(s) > 1 && s[1] == 'u' {
			return min(len(s), 8)
		}
		return min(len(s), 5)
	}
	_, size := utf8.DecodeRuneInString(s)
	return size
}
