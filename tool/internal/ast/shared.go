// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package ast

import (
	"strings"

	"github.com/dave/dst"

	"github.com/entryprobe/entryprobe/tool/internal/rule"
)

func ListFuncDecls(root *dst.File) []*dst.FuncDecl {
	funcDecls := make([]*dst.FuncDecl, 0)
	for _, decl := range root.Decls {
		funcDecl, ok := decl.(*dst.FuncDecl)
		if !ok {
			continue
		}
		funcDecls = append(funcDecls, funcDecl)
	}
	return funcDecls
}

func HasReceiver(fn *dst.FuncDecl) bool {
	return fn.Recv != nil && len(fn.Recv.List) > 0
}

// ReceiverOf returns the base type name of the receiver and whether it is a
// pointer, e.g. "C", true for "func (c *C[T]) m()".
func ReceiverOf(fn *dst.FuncDecl) (string, bool) {
	if !HasReceiver(fn) {
		return "", false
	}
	typ := fn.Recv.List[0].Type
	pointer := false
	for {
		switch t := typ.(type) {
		case *dst.ParenExpr:
			typ = t.X
			continue
		case *dst.StarExpr:
			pointer = true
			typ = t.X
			continue
		case *dst.IndexExpr:
			typ = t.X
			continue
		case *dst.IndexListExpr:
			typ = t.X
			continue
		case *dst.Ident:
			return t.Name, pointer
		}
		return "", pointer
	}
}

// DirectivesOf returns the directive comments ("//go:noinline",
// "//entryprobe:trace") attached above a function declaration.
func DirectivesOf(fn *dst.FuncDecl) []string {
	var directives []string
	for _, c := range fn.Decs.Start.All() {
		if len(c) > 2 && strings.HasPrefix(c, "//") && c[2] != ' ' && c[2] != '\t' {
			directives = append(directives, c)
		}
	}
	return directives
}

// SignatureOf describes a function declaration of package pkg for matching.
func SignatureOf(pkg string, fn *dst.FuncDecl) rule.Signature {
	recv, pointer := ReceiverOf(fn)
	return rule.Signature{
		Package:    pkg,
		Receiver:   recv,
		Pointer:    pointer,
		Method:     fn.Name.Name,
		Directives: DirectivesOf(fn),
	}
}

// ParamCount counts the parameters of a function, a variadic parameter
// counting as one.
func ParamCount(fn *dst.FuncDecl) int {
	if fn.Type.Params == nil {
		return 0
	}
	n := 0
	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			n++
			continue
		}
		n += len(field.Names)
	}
	return n
}

func IsUnusedIdent(ident *dst.Ident) bool {
	return ident.Name == IdentIgnore
}
