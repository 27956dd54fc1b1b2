// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   Target
	}{
		{
			name:   "method with defaults",
			config: "typeName=a.b.C,methodName=m",
			want: Target{
				TypeName: "a.b.C", Method: "m", Args: []int{0},
				Match: MatchExact, Sink: SinkStderr,
				Package: "a.b", Receiver: "C",
			},
		},
		{
			name:   "import path with repeated argIndex",
			config: " typeName = example.com/a/b.C , methodName=m, argIndex=2, argIndex=0 ",
			want: Target{
				TypeName: "example.com/a/b.C", Method: "m", Args: []int{2, 0},
				Match: MatchExact, Sink: SinkStderr,
				Package: "example.com/a/b", Receiver: "C",
			},
		},
		{
			name:   "package level function",
			config: "typeName=example.com/a/b,methodName=Run",
			want: Target{
				TypeName: "example.com/a/b", Method: "Run", Args: []int{0},
				Match: MatchExact, Sink: SinkStderr,
				Package: "example.com/a/b",
			},
		},
		{
			name:   "trailing dot forces package level",
			config: "typeName=gopkg.in/yaml.v3.,methodName=Marshal",
			want: Target{
				TypeName: "gopkg.in/yaml.v3.", Method: "Marshal", Args: []int{0},
				Match: MatchExact, Sink: SinkStderr,
				Package: "gopkg.in/yaml.v3",
			},
		},
		{
			name:   "all keys",
			config: "name=greet,typeName=main,methodName=^Hel,match=regex,sink=otlp-json,sinkPath=/tmp/x.jsonl,argIndex=1",
			want: Target{
				Name: "greet", TypeName: "main", Method: "^Hel", Args: []int{1},
				Match: MatchRegex, Sink: SinkOTLPJSON, SinkPath: "/tmp/x.jsonl",
				Package: "main",
			},
		},
		{
			name:   "no argument captured",
			config: "typeName=example.com/a/b,methodName=Tick,argIndex=none",
			want: Target{
				TypeName: "example.com/a/b", Method: "Tick", Args: []int{},
				Match: MatchExact, Sink: SinkStderr,
				Package: "example.com/a/b",
			},
		},
		{
			name:   "directive without method",
			config: "typeName=example.com/a,match=directive",
			want: Target{
				TypeName: "example.com/a", Args: []int{0},
				Match: MatchDirective, Sink: SinkStderr,
				Package: "example.com/a",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseTarget_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		errMsg string
	}{
		{"empty", "", "type name is empty"},
		{"missing type", "methodName=m", "type name is empty"},
		{"not key value", "typeName=a.b.C,m", "is not key=value"},
		{"unknown key", "typeName=a.b.C,methodName=m,className=x", `unknown key "className"`},
		{"duplicate key", "typeName=a.b.C,typeName=a.b.D,methodName=m", `duplicate key "typeName"`},
		{"negative index", "typeName=a.b.C,methodName=m,argIndex=-1", "negative"},
		{"non numeric index", "typeName=a.b.C,methodName=m,argIndex=first", "not a number"},
		{"empty index", "typeName=a.b.C,methodName=m,argIndex=", "not a number"},
		{"none with indices", "typeName=a.b.C,methodName=m,argIndex=none,argIndex=1", "cannot be combined"},
		{"bad method", "typeName=a.b.C,methodName=do-it", "not an identifier"},
		{"missing method", "typeName=a.b.C", "not an identifier"},
		{"bad regex", "typeName=a.b.C,methodName=(,match=regex", "method pattern"},
		{"empty prefix", "typeName=a.b.C,match=prefix", "prefix match needs"},
		{"unknown match", "typeName=a.b.C,methodName=m,match=glob", "unknown match kind"},
		{"unknown sink", "typeName=a.b.C,methodName=m,sink=syslog", "unknown sink"},
		{"otlp without path", "typeName=a.b.C,methodName=m,sink=otlp-json", "needs a sink path"},
		{"bad receiver", "typeName=a.b.1C,methodName=m", "not an identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTarget(tt.config)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidTarget)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTargetConfigRoundTrip(t *testing.T) {
	for _, config := range []string{
		"typeName=a.b.C,methodName=m,argIndex=0",
		"typeName=example.com/x,methodName=Get,argIndex=1,argIndex=0,match=prefix,name=get",
		"typeName=main,argIndex=0,match=directive,sink=otlp-json,sinkPath=out.jsonl",
		"typeName=example.com/x,methodName=Tick,argIndex=none",
	} {
		got, err := ParseTarget(config)
		require.NoError(t, err)
		assert.Equal(t, config, got.Config())
	}
}

func TestTargetString(t *testing.T) {
	target, err := ParseTarget("typeName=a.b.C,methodName=m")
	require.NoError(t, err)
	assert.Equal(t, "a.b.C.m", target.String())
	assert.Equal(t, 0, target.MaxArg())

	named, err := ParseTarget("typeName=a.b.C,methodName=m,name=trace-m,argIndex=3,argIndex=1")
	require.NoError(t, err)
	assert.Equal(t, "trace-m", named.String())
	assert.Equal(t, 3, named.MaxArg())

	none, err := ParseTarget("typeName=a.b.C,methodName=m,argIndex=none")
	require.NoError(t, err)
	assert.Equal(t, -1, none.MaxArg())
}
