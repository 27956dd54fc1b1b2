// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"fmt"
	"go/token"
	"path/filepath"

	"github.com/dave/dst"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/ast"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

const (
	// enterFunc is declared body-less in LinknameFile and bound to
	// probe.Enter, so woven packages need no new imports.
	enterFunc    = "_entryprobe_enter"
	argPrefix    = "_entryprobe_arg"
	LinknameFile = "entryprobe.linkname.go"
	wovenPrefix  = "entryprobe_"
)

type weaveTarget struct {
	tr      *rule.Transformer
	matcher rule.Matcher
}

// WeaveFile prepends an entry stub to every function of root matched by a
// transformer and returns the number of woven functions. Each matching
// transformer contributes its own stub, so a target installed twice is
// reported twice.
func WeaveFile(p *ast.AstParser, root *dst.File, pkg string, trs []*rule.Transformer) (int, error) {
	targets := make([]weaveTarget, 0, len(trs))
	for _, tr := range trs {
		m, err := tr.Matcher()
		if err != nil {
			return 0, err
		}
		targets = append(targets, weaveTarget{tr: tr, matcher: m})
	}

	woven := 0
	for _, fn := range ast.ListFuncDecls(root) {
		if fn.Body == nil {
			continue
		}
		sig := ast.SignatureOf(pkg, fn)
		var stubs []dst.Stmt
		for _, t := range targets {
			if !t.matcher.Match(sig) {
				continue
			}
			args, err := captureArgs(fn, t.tr.Target.Args)
			if err != nil {
				return 0, ex.Wrapf(err, "weaving %s", sig.QualifiedName())
			}
			stubs = append(stubs, entryStub(sig.QualifiedName(), args))
		}
		if len(stubs) == 0 {
			continue
		}
		insertStubs(p, fn, stubs)
		woven++
	}
	if woven > 0 {
		anchorDecls(p, root)
	}
	return woven, nil
}

// anchorDecls puts a line directive in front of every top-level declaration
// so that positions outside the woven bodies also map to the original file.
func anchorDecls(p *ast.AstParser, root *dst.File) {
	for _, decl := range root.Decls {
		pos := p.FindPosition(decl)
		if !pos.IsValid() {
			continue
		}
		decl.Decorations().Start.Append(
			fmt.Sprintf("//line %s:%d:%d", pos.Filename, pos.Line, pos.Column))
	}
}

// namedParams returns one identifier per parameter. Unnamed parameters are
// all named, since Go does not allow mixing named and unnamed ones.
func namedParams(fn *dst.FuncDecl) []*dst.Ident {
	if fn.Type.Params == nil {
		return nil
	}
	var idents []*dst.Ident
	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			field.Names = []*dst.Ident{ast.Ident(fmt.Sprintf("%s%d", argPrefix, len(idents)))}
		}
		idents = append(idents, field.Names...)
	}
	return idents
}

func captureArgs(fn *dst.FuncDecl, indices []int) ([]dst.Expr, error) {
	params := namedParams(fn)
	args := make([]dst.Expr, 0, len(indices))
	for _, idx := range indices {
		if idx >= len(params) {
			return nil, ex.Newf("argument index %d out of range, function has %d parameters",
				idx, len(params))
		}
		ident := params[idx]
		if ast.IsUnusedIdent(ident) {
			ident.Name = fmt.Sprintf("%s%d", argPrefix, idx)
		}
		args = append(args, ast.Ident(ident.Name))
	}
	return args, nil
}

func entryStub(site string, args []dst.Expr) dst.Stmt {
	call := ast.CallTo(enterFunc, append(ast.Exprs(ast.StringLit(site)), args...))
	stub := ast.ExprStmt(call)
	stub.Decs.Before = dst.NewLine
	return stub
}

// lineDirective uses the block form, which is honored at any column. The
// printer puts a blank between the comment and the statement, so the
// directive names the column of that blank.
func lineDirective(pos token.Position) string {
	return fmt.Sprintf("/*line %s:%d:%d*/", pos.Filename, pos.Line, max(pos.Column-1, 1))
}

// insertStubs puts the stubs in front of the body. The stubs are attributed
// to the line of the opening brace and every original statement keeps its
// line, so stack traces and panics still point into the original file.
func insertStubs(p *ast.AstParser, fn *dst.FuncDecl, stubs []dst.Stmt) {
	if brace := p.FindPosition(fn.Body); brace.IsValid() {
		stubs[0].Decorations().Start.Append(lineDirective(brace))
	}
	for _, stmt := range fn.Body.List {
		pos := p.FindPosition(stmt)
		if !pos.IsValid() {
			continue
		}
		stmt.Decorations().Before = dst.NewLine
		stmt.Decorations().Start.Append(lineDirective(pos))
	}
	fn.Body.List = append(stubs, fn.Body.List...)
}

// writeLinknameFile declares enterFunc in package pkgName. The declaration
// has no body, so the package must be compiled without -complete.
func writeLinknameFile(dir, pkgName string) (string, error) {
	source := fmt.Sprintf(`package %s

import _ "unsafe"

//go:linkname %s %s.Enter
func %s(site string, args ...any)
`, pkgName, enterFunc, util.ProbePkg, enterFunc)

	p := ast.NewAstParser()
	root, err := p.ParseSource(source)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, LinknameFile)
	if err = ast.WriteFile(path, root); err != nil {
		return "", err
	}
	return path, nil
}
