// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rule

import (
	"errors"
	"fmt"
	"go/token"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/entryprobe/entryprobe/tool/ex"
)

// ErrInvalidTarget marks every configuration error found while parsing or
// validating a Target.
var ErrInvalidTarget = errors.New("invalid target")

type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchPrefix    MatchKind = "prefix"
	MatchRegex     MatchKind = "regex"
	MatchDirective MatchKind = "directive"
)

// TraceDirective marks a function for interception when the target uses
// MatchDirective.
const TraceDirective = "//entryprobe:trace"

type SinkKind string

const (
	SinkStderr   SinkKind = "stderr"
	SinkOtel     SinkKind = "otel"
	SinkOTLPJSON SinkKind = "otlp-json"
)

// Target describes the function to intercept and which of its arguments to
// capture. TypeName is either "<import path>.<Type>" for methods or
// "<import path>" for package-level functions; Validate splits it into
// Package and Receiver. A Target must not be modified after Validate.
type Target struct {
	Name     string    `json:"name"                yaml:"-"`
	TypeName string    `json:"type"                yaml:"type"`
	Method   string    `json:"method"              yaml:"method"`
	Args     []int     `json:"args"                yaml:"args"`
	Match    MatchKind `json:"match"               yaml:"match"`
	Sink     SinkKind  `json:"sink"                yaml:"sink"`
	SinkPath string    `json:"sink-path,omitempty" yaml:"sink-path"`

	Package  string `json:"package"            yaml:"-"`
	Receiver string `json:"receiver,omitempty" yaml:"-"`
}

func (t *Target) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Method == "" {
		return t.TypeName
	}
	return t.TypeName + "." + t.Method
}

// splitTypeName splits at the last dot after the last slash, so "a.b.C" is
// type C of package "a.b". A trailing dot forces a package-level target for
// import paths whose last element contains a dot, e.g. "gopkg.in/yaml.v3.".
func splitTypeName(typeName string) (string, string) {
	if pkg, ok := strings.CutSuffix(typeName, "."); ok {
		return pkg, ""
	}
	slash := strings.LastIndex(typeName, "/")
	dot := strings.LastIndex(typeName[slash+1:], ".")
	if dot < 0 {
		return typeName, ""
	}
	dot += slash + 1
	return typeName[:dot], typeName[dot+1:]
}

func invalid(format string, args ...any) error {
	return ex.Wrapf(ErrInvalidTarget, format, args...)
}

// Validate fills in defaults, derives Package and Receiver, and reports the
// first configuration error.
func (t *Target) Validate() error {
	t.TypeName = strings.TrimSpace(t.TypeName)
	if t.TypeName == "" {
		return invalid("type name is empty")
	}
	t.Package, t.Receiver = splitTypeName(t.TypeName)
	if t.Package == "" {
		return invalid("type name %q has no package", t.TypeName)
	}
	if t.Receiver != "" && !token.IsIdentifier(t.Receiver) {
		return invalid("type name %q: %q is not an identifier", t.TypeName, t.Receiver)
	}
	if t.Match == "" {
		t.Match = MatchExact
	}
	if t.Sink == "" {
		t.Sink = SinkStderr
	}
	// nil means unset; an empty, non-nil set captures nothing
	if t.Args == nil {
		t.Args = []int{0}
	}
	for _, idx := range t.Args {
		if idx < 0 {
			return invalid("argument index %d is negative", idx)
		}
	}
	switch t.Match {
	case MatchExact:
		if !token.IsIdentifier(t.Method) {
			return invalid("method name %q is not an identifier", t.Method)
		}
	case MatchPrefix:
		if t.Method == "" {
			return invalid("prefix match needs a method name")
		}
	case MatchRegex:
		if t.Method == "" {
			return invalid("regex match needs a method name")
		}
		if _, err := regexp.Compile(t.Method); err != nil {
			return invalid("method pattern %q: %v", t.Method, err)
		}
	case MatchDirective:
	default:
		return invalid("unknown match kind %q", t.Match)
	}
	switch t.Sink {
	case SinkStderr, SinkOtel:
	case SinkOTLPJSON:
		if t.SinkPath == "" {
			return invalid("sink %s needs a sink path", t.Sink)
		}
	default:
		return invalid("unknown sink %q", t.Sink)
	}
	return nil
}

const (
	keyTypeName   = "typeName"
	keyMethodName = "methodName"
	keyArgIndex   = "argIndex"
	keyMatch      = "match"
	keySink       = "sink"
	keySinkPath   = "sinkPath"
	keyName       = "name"

	// noArgs as argIndex captures no argument at all
	noArgs = "none"
)

// ParseTarget parses the comma separated key=value form, e.g.
//
//	typeName=example.com/a/b.C,methodName=m,argIndex=0
//
// argIndex may be repeated to capture several arguments in order, or be
// "none" to capture nothing.
func ParseTarget(config string) (*Target, error) {
	t := &Target{}
	seen := make(map[string]bool)
	none := false
	for _, pair := range strings.Split(config, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, invalid("entry %q is not key=value", pair)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != keyArgIndex && seen[key] {
			return nil, invalid("duplicate key %q", key)
		}
		seen[key] = true
		switch key {
		case keyTypeName:
			t.TypeName = value
		case keyMethodName:
			t.Method = value
		case keyArgIndex:
			if value == noArgs {
				none = true
				continue
			}
			idx, err := strconv.Atoi(value)
			if err != nil {
				return nil, invalid("argument index %q is not a number", value)
			}
			t.Args = append(t.Args, idx)
		case keyMatch:
			t.Match = MatchKind(value)
		case keySink:
			t.Sink = SinkKind(value)
		case keySinkPath:
			t.SinkPath = value
		case keyName:
			t.Name = value
		default:
			return nil, invalid("unknown key %q", key)
		}
	}
	if none {
		if len(t.Args) > 0 {
			return nil, invalid("%s=%s cannot be combined with argument indices", keyArgIndex, noArgs)
		}
		t.Args = []int{}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MaxArg returns the highest captured argument index, -1 when no argument
// is captured.
func (t *Target) MaxArg() int {
	if len(t.Args) == 0 {
		return -1
	}
	return slices.Max(t.Args)
}

// Config renders the target back into the form accepted by ParseTarget.
func (t *Target) Config() string {
	parts := []string{keyTypeName + "=" + t.TypeName}
	if t.Method != "" {
		parts = append(parts, keyMethodName+"="+t.Method)
	}
	if t.Args != nil && len(t.Args) == 0 {
		parts = append(parts, keyArgIndex+"="+noArgs)
	}
	for _, idx := range t.Args {
		parts = append(parts, fmt.Sprintf("%s=%d", keyArgIndex, idx))
	}
	if t.Match != "" && t.Match != MatchExact {
		parts = append(parts, keyMatch+"="+string(t.Match))
	}
	if t.Sink != "" && t.Sink != SinkStderr {
		parts = append(parts, keySink+"="+string(t.Sink))
	}
	if t.SinkPath != "" {
		parts = append(parts, keySinkPath+"="+t.SinkPath)
	}
	if t.Name != "" {
		parts = append(parts, keyName+"="+t.Name)
	}
	return strings.Join(parts, ",")
}
