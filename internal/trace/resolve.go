package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrResolution matches every *ResolutionError via errors.Is.
var ErrResolution = errors.New("cannot resolve file reference")

// ResolutionError is returned when a file token cannot be mapped onto the
// local solution root.
type ResolutionError struct {
	Token  string
	Root   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q against %q: %s", e.Token, e.Root, e.Reason)
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// Target is a navigation destination. Line is 1-based; 0 means the token
// carried no usable line number.
type Target struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// ExtractLineMarker returns the first ":line N" style marker in text for the
// default locales, or "".
func ExtractLineMarker(text string) string { return defaultClassifier.ExtractLineMarker(text) }

// ExtractLineNumber returns the number in the first line marker of text for
// the default locales, or 0.
func ExtractLineNumber(text string) int { return defaultClassifier.ExtractLineNumber(text) }

// ResolveFileTarget maps a file token onto solutionRoot using the default
// locales.
func ResolveFileTarget(rawToken, solutionRoot string) (Target, error) {
	return defaultClassifier.ResolveFileTarget(rawToken, solutionRoot)
}

// ExtractLineMarker returns the first line marker (":line 44", ":строка 44")
// in text, or "" when there is none.
func (c *Classifier) ExtractLineMarker(text string) string {
	return c.marker.FindString(text)
}

// ExtractLineNumber parses the number of the first line marker in text.
// Missing markers and unparsable numbers yield 0.
func (c *Classifier) ExtractLineNumber(text string) int {
	marker := c.ExtractLineMarker(text)
	if marker == "" {
		return 0
	}
	n, err := strconv.Atoi(marker[strings.LastIndexAny(marker, " \t")+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ResolveFileTarget turns a file token captured on any machine into a path
// under solutionRoot. The token usually repeats the solution directory name
// (the build machine's checkout), so everything up to and including the last
// "<sep><solution dir><sep>" is dropped before joining with solutionRoot.
// The line comes from the original token.
func (c *Classifier) ResolveFileTarget(rawToken, solutionRoot string) (Target, error) {
	trimmed := strings.TrimRight(solutionRoot, `\/`)
	if trimmed == "" {
		return Target{}, &ResolutionError{Token: rawToken, Root: solutionRoot, Reason: "empty solution root"}
	}
	dirName := trimmed[strings.LastIndexAny(trimmed, `\/`)+1:]

	cut, ok := afterLastSegment(rawToken, dirName)
	if !ok {
		return Target{}, &ResolutionError{
			Token:  rawToken,
			Root:   solutionRoot,
			Reason: fmt.Sprintf("directory %q not found in token", dirName),
		}
	}

	rel := rawToken[cut:]
	if marker := c.ExtractLineMarker(rel); marker != "" {
		rel = rel[:strings.Index(rel, marker)]
	}
	if rel == "" {
		return Target{}, &ResolutionError{Token: rawToken, Root: solutionRoot, Reason: "no file path after solution directory"}
	}

	sep := separatorOf(solutionRoot)
	rel = strings.NewReplacer(`\`, sep, "/", sep).Replace(rel)
	base := solutionRoot
	if !strings.HasSuffix(base, `\`) && !strings.HasSuffix(base, "/") {
		base += sep
	}

	return Target{Path: base + rel, Line: c.ExtractLineNumber(rawToken)}, nil
}

// afterLastSegment finds the last occurrence of name bounded by path
// separators on both sides and returns the index just past the trailing one.
func afterLastSegment(s, name string) (int, bool) {
	for end := len(s); end > 0; {
		i := strings.LastIndex(s[:end], name)
		if i < 0 {
			return 0, false
		}
		after := i + len(name)
		if i > 0 && isSeparator(s[i-1]) && after < len(s) && isSeparator(s[after]) {
			return after + 1, true
		}
		end = after - 1
	}
	return 0, false
}

func isSeparator(b byte) bool { return b == '\\' || b == '/' }

func separatorOf(root string) string {
	if strings.Contains(root, `\`) {
		return `\`
	}
	return "/"
}
