// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rule

import (
	"regexp"
	"slices"
	"strings"
)

// Signature is what is known about a function declaration before it is
// compiled. Receiver is the base type name, without pointer or type
// parameters.
type Signature struct {
	Package    string
	Receiver   string
	Pointer    bool
	Method     string
	Directives []string
}

// QualifiedName renders the signature the way the runtime names functions,
// e.g. "example.com/a/b.(*C).m".
func (s Signature) QualifiedName() string {
	switch {
	case s.Receiver == "":
		return s.Package + "." + s.Method
	case s.Pointer:
		return s.Package + ".(*" + s.Receiver + ")." + s.Method
	default:
		return s.Package + "." + s.Receiver + "." + s.Method
	}
}

func (s Signature) hasDirective(directive string) bool {
	return slices.ContainsFunc(s.Directives, func(d string) bool {
		return d == directive || strings.HasPrefix(d, directive+" ")
	})
}

type Matcher interface {
	Match(sig Signature) bool
}

// scope is the part of a match shared by every kind: package and receiver
// compare by exact, case-sensitive equality.
type scope struct {
	pkg  string
	recv string
	// anyRecv lets a directive target on a bare package cover methods too
	anyRecv bool
}

func (s scope) contains(sig Signature) bool {
	if sig.Package != s.pkg {
		return false
	}
	return s.anyRecv || sig.Receiver == s.recv
}

type exactMatcher struct {
	scope
	method string
}

func (m *exactMatcher) Match(sig Signature) bool {
	return m.contains(sig) && sig.Method == m.method
}

type prefixMatcher struct {
	scope
	prefix string
}

func (m *prefixMatcher) Match(sig Signature) bool {
	return m.contains(sig) && strings.HasPrefix(sig.Method, m.prefix)
}

type regexMatcher struct {
	scope
	re *regexp.Regexp
}

func (m *regexMatcher) Match(sig Signature) bool {
	return m.contains(sig) && m.re.MatchString(sig.Method)
}

type directiveMatcher struct {
	scope
	method string
}

func (m *directiveMatcher) Match(sig Signature) bool {
	if !m.contains(sig) || !sig.hasDirective(TraceDirective) {
		return false
	}
	return m.method == "" || sig.Method == m.method
}

// NewMatcher builds the matcher for a validated target.
func NewMatcher(t *Target) (Matcher, error) {
	if t.Package == "" {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	sc := scope{pkg: t.Package, recv: t.Receiver}
	switch t.Match {
	case MatchExact, "":
		return &exactMatcher{scope: sc, method: t.Method}, nil
	case MatchPrefix:
		return &prefixMatcher{scope: sc, prefix: t.Method}, nil
	case MatchRegex:
		re, err := regexp.Compile(t.Method)
		if err != nil {
			return nil, invalid("method pattern %q: %v", t.Method, err)
		}
		return &regexMatcher{scope: sc, re: re}, nil
	case MatchDirective:
		sc.anyRecv = t.Receiver == ""
		return &directiveMatcher{scope: sc, method: t.Method}, nil
	default:
		return nil, invalid("unknown match kind %q", t.Match)
	}
}
