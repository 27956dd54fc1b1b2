// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/entryprobe/entryprobe/tool/internal/ast"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
)

// matchedFunc is a function declaration selected by a matcher.
type matchedFunc struct {
	Name   string // qualified, e.g. "example.com/a.(*C).m"
	Source string
	Line   int
	Params int
}

// scanFile returns the functions of one source file accepted by matcher.
// Declarations without a body are implemented elsewhere and cannot be woven.
func scanFile(pkg, source string, matcher rule.Matcher) ([]matchedFunc, error) {
	parser := ast.NewAstParser()
	root, err := parser.ParseFast(source)
	if err != nil {
		return nil, err
	}
	var found []matchedFunc
	for _, fn := range ast.ListFuncDecls(root) {
		if fn.Body == nil {
			continue
		}
		sig := ast.SignatureOf(pkg, fn)
		if !matcher.Match(sig) {
			continue
		}
		found = append(found, matchedFunc{
			Name:   sig.QualifiedName(),
			Source: source,
			Line:   parser.FindPosition(fn).Line,
			Params: ast.ParamCount(fn),
		})
	}
	return found, nil
}

// scanDependency parses the sources of dep concurrently and collects every
// matched function in source order.
func scanDependency(ctx context.Context, dep *Dependency, matcher rule.Matcher) ([]matchedFunc, error) {
	perFile := make([][]matchedFunc, len(dep.Sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, source := range dep.Sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found, err := scanFile(dep.ImportPath, source, matcher)
			if err != nil {
				return err
			}
			perFile[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(perFile...), nil
}

func newTransformer(target *rule.Target, pkg string, found []matchedFunc) *rule.Transformer {
	tr := &rule.Transformer{
		Target:  target,
		Package: pkg,
	}
	for _, fn := range found {
		if !slices.Contains(tr.Sources, fn.Source) {
			tr.Sources = append(tr.Sources, fn.Source)
		}
		tr.Funcs = append(tr.Funcs, fn.Name)
	}
	return tr
}
