// Package trace splits exception and stack-trace text into typed tokens and
// turns file references found in it into navigation targets.
package trace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Locale holds the words an exception formatter prints for one UI language:
// the word before a line number ("line") and the word before a call site ("at").
type Locale struct {
	Name     string `yaml:"name"      json:"name"`
	LineWord string `yaml:"line_word" json:"line_word"`
	CallWord string `yaml:"call_word" json:"call_word"`
}

// DefaultLocales are the English and Russian exception formats.
var DefaultLocales = []Locale{
	{Name: "en", LineWord: "line", CallWord: "at"},
	{Name: "ru", LineWord: "строка", CallWord: "в"},
}

// ErrNoLocales is returned by NewClassifier when it is given nothing to match.
var ErrNoLocales = errors.New("at least one locale is required")

// Pattern fragments shared by every locale. The path body excludes the
// characters Windows forbids in paths plus line breaks, so a reference never
// spans two lines of a trace.
const (
	pathRoot    = `(?:[A-Za-z]:[\\/]|\\\\)`
	pathBody    = `[^<>:"|?*\r\n]*`
	lineNumber  = `[ \t]+[0-9]+`
	methodChain = "[ \\t]+[A-Za-z0-9_.`]{5,}\\("
)

// Classifier tokenizes trace text for a fixed set of locales. It is immutable
// after construction and safe for concurrent use.
type Classifier struct {
	locales  []Locale
	file     *regexp.Regexp
	combined *regexp.Regexp
	marker   *regexp.Regexp
}

// NewClassifier compiles the recognizers for the given locales.
func NewClassifier(locales ...Locale) (*Classifier, error) {
	if len(locales) == 0 {
		return nil, ErrNoLocales
	}

	var lineWords, callWords []string
	for _, l := range locales {
		if strings.TrimSpace(l.LineWord) == "" || strings.TrimSpace(l.CallWord) == "" {
			return nil, fmt.Errorf("locale %q: line_word and call_word must be set", l.Name)
		}
		lineWords = append(lineWords, regexp.QuoteMeta(l.LineWord))
		callWords = append(callWords, regexp.QuoteMeta(l.CallWord))
	}
	lineAlt := "(?:" + strings.Join(lineWords, "|") + ")"
	callAlt := "(?:" + strings.Join(callWords, "|") + ")"

	fileExpr := pathRoot + pathBody + ":" + lineAlt + lineNumber
	methodExpr := callAlt + methodChain

	file, err := regexp.Compile(fileExpr)
	if err != nil {
		return nil, fmt.Errorf("compile file pattern: %w", err)
	}
	combined, err := regexp.Compile("(?:" + fileExpr + ")|(?:" + methodExpr + ")")
	if err != nil {
		return nil, fmt.Errorf("compile combined pattern: %w", err)
	}
	marker, err := regexp.Compile(":" + lineAlt + lineNumber)
	if err != nil {
		return nil, fmt.Errorf("compile line marker pattern: %w", err)
	}

	return &Classifier{
		locales:  append([]Locale(nil), locales...),
		file:     file,
		combined: combined,
		marker:   marker,
	}, nil
}

// MustNewClassifier is NewClassifier for package-level initialisation.
func MustNewClassifier(locales ...Locale) *Classifier {
	c, err := NewClassifier(locales...)
	if err != nil {
		panic(err)
	}
	return c
}

// Locales returns a copy of the classifier's locale table.
func (c *Classifier) Locales() []Locale {
	return append([]Locale(nil), c.locales...)
}

var defaultClassifier = MustNewClassifier(DefaultLocales...)

// Default returns the classifier for DefaultLocales.
func Default() *Classifier { return defaultClassifier }
