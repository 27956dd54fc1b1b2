// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rule

// Transformer is a target resolved against the build: the installer
// registers one per successful install, and the toolexec phase applies it
// to every compile of Package.
type Transformer struct {
	ID      int      `json:"id"`
	Target  *Target  `json:"target"`
	Package string   `json:"package"`
	Sources []string `json:"sources"`
	Funcs   []string `json:"funcs"`
}

func (tr *Transformer) String() string {
	return tr.Target.String() + "@" + tr.Package
}

// Matcher rebuilds the matcher of a transformer read back from disk.
func (tr *Transformer) Matcher() (Matcher, error) {
	return NewMatcher(tr.Target)
}
