// Package filter implements subscription filter parsing and regex matching.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"bili_bot/internal/model"
)

// Args is the parsed filter part of a subscribe command.
type Args struct {
	Types    []model.FilterType
	Patterns []string
}

// ParseArgs splits command tokens into filter types and regex patterns.
// Tokens naming a known filter type become types, everything else is a
// pattern. Duplicates are dropped, order is kept.
func ParseArgs(tokens []string) Args {
	var a Args
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if ft := model.FilterType(tok); ft.IsValid() {
			a.Types = append(a.Types, ft)
			continue
		}
		a.Patterns = append(a.Patterns, tok)
	}
	a.Types = lo.Uniq(a.Types)
	a.Patterns = lo.Uniq(a.Patterns)
	return a
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// ValidatePatterns checks every pattern and reports all invalid ones at once.
func ValidatePatterns(patterns []string) error {
	var errs []error
	for _, p := range patterns {
		if err := ValidateRegex(p); err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Matcher tests text against an ordered list of compiled patterns.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles patterns in order. A pattern that fails to compile
// is skipped; the rest are still used.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		m.patterns = append(m.patterns, re)
	}
	return m
}

// Len returns the number of usable patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match returns the first pattern found in text.
func (m *Matcher) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}
