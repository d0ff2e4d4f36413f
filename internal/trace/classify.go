package trace

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind says what a token refers to.
type Kind int

const (
	KindText Kind = iota
	KindFile
	KindMethod
)

var kindNames = [...]string{
	KindText:   "text",
	KindFile:   "file",
	KindMethod: "method",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name so JSON payloads stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown token kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if string(b) == name {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown token kind %q", b)
}

// Token is a contiguous span of the input and what it refers to.
type Token struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Classify splits input into tokens using the default locales.
func Classify(input string) []Token {
	return defaultClassifier.Classify(input)
}

// Classify splits input into an ordered token sequence. The concatenated
// Text of the result is always exactly input. Empty input yields nil.
func (c *Classifier) Classify(input string) []Token {
	if input == "" {
		return nil
	}

	var out []Token
	consumed, from := 0, 0
	for from < len(input) {
		loc := c.combined.FindStringIndex(input[from:])
		if loc == nil {
			break
		}
		start, end := from+loc[0], from+loc[1]
		match := input[start:end]

		kind := KindMethod
		if c.file.MatchString(match) {
			kind = KindFile
		}

		// "Format Foo.Bar.Baz(" must not yield a call site from the tail of
		// "Format". Resume right after the rejected start.
		if kind == KindMethod && gluedToWord(input, start) {
			_, size := utf8.DecodeRuneInString(input[start:])
			from = start + size
			continue
		}

		if start > consumed {
			out = append(out, Token{Text: input[consumed:start], Kind: KindText})
		}
		out = append(out, Token{Text: match, Kind: kind})
		consumed, from = end, end
	}

	if consumed < len(input) {
		out = append(out, Token{Text: input[consumed:], Kind: KindText})
	}
	return out
}

func gluedToWord(s string, at int) bool {
	if at == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:at])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// MethodName splits a method token such as "at Foo.Bar.Baz(" into the
// qualified chain ("Foo.Bar.Baz") and its last segment ("Baz"). Text that
// does not look like a method token is returned trimmed, as both values.
func MethodName(token string) (qualified, name string) {
	s := strings.TrimSpace(token)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	s = strings.TrimSuffix(s, "(")
	s = strings.Trim(s, ".")
	name = s
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		name = s[i+1:]
	}
	return s, name
}
