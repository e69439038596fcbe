package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is matched by every ValidationError.
var ErrInvalidPattern = errors.New("invalid pattern")

// ValidationError reports a rejected filter pattern.
type ValidationError struct {
	Pattern string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("invalid pattern: %s", e.Reason)
	}
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPattern }

// Pattern is a compiled pod name filter.
type Pattern struct {
	Text string
	re   *regexp.Regexp
}

// Match reports whether name contains a match of the pattern (unanchored).
func (p *Pattern) Match(name string) bool {
	return p.re.MatchString(name)
}

// CompilePattern compiles text with surrounding whitespace ignored. Pattern.Text keeps
// text exactly as given.
func CompilePattern(text string) (*Pattern, error) {
	expr := strings.TrimSpace(text)
	if expr == "" {
		return nil, &ValidationError{Reason: "pattern cannot be empty"}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &ValidationError{Pattern: text, Reason: err.Error()}
	}
	return &Pattern{Text: text, re: re}, nil
}

// FilterState holds the current pattern; nil means the system awaits one.
type FilterState struct {
	cell Cell[*Pattern]
	wake []*Signal
}

// NewFilterState wakes every signal in wake whenever the pattern changes.
func NewFilterState(wake ...*Signal) *FilterState {
	return &FilterState{wake: wake}
}

// Set validates and stores text. An invalid pattern leaves the state untouched.
func (f *FilterState) Set(text string) (*Pattern, error) {
	p, err := CompilePattern(text)
	if err != nil {
		return nil, err
	}
	f.cell.Store(p)
	f.notify()
	return p, nil
}

// Reset clears the pattern.
func (f *FilterState) Reset() {
	f.cell.Store(nil)
	f.notify()
}

// Current returns the pattern (nil when unset) and its version.
func (f *FilterState) Current() (*Pattern, uint64) {
	return f.cell.Load()
}

// Version changes on every Set and Reset.
func (f *FilterState) Version() uint64 {
	return f.cell.Version()
}

func (f *FilterState) notify() {
	for _, s := range f.wake {
		s.Notify()
	}
}
