// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package ast

import (
	"go/parser"
	"go/token"
	"os"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/util"
)

type AstParser struct {
	fset *token.FileSet
	dec  *decorator.Decorator
}

func NewAstParser() *AstParser {
	return &AstParser{
		fset: token.NewFileSet(),
	}
}

// Parse parses the AST from a file. Positions carry the full path so they can
// be used in line directives.
func (ap *AstParser) Parse(filePath string, mode parser.Mode) (*dst.File, error) {
	util.Assert(ap.fset != nil, "fset is not initialized")

	file, err := os.Open(filePath)
	if err != nil {
		return nil, ex.Wrapf(err, "failed to open file %s", filePath)
	}
	defer file.Close()
	astFile, err := parser.ParseFile(ap.fset, filePath, file, mode)
	if err != nil {
		return nil, ex.Wrapf(err, "failed to parse file %s", filePath)
	}
	ap.dec = decorator.NewDecorator(ap.fset)
	dstFile, err := ap.dec.DecorateFile(astFile)
	if err != nil {
		return nil, ex.Wrapf(err, "failed to decorate file %s", filePath)
	}
	return dstFile, nil
}

// ParseSource parses the AST from complete source code.
func (ap *AstParser) ParseSource(source string) (*dst.File, error) {
	util.Assert(source != "", "empty source")
	ap.dec = decorator.NewDecorator(ap.fset)
	dstRoot, err := ap.dec.Parse(source)
	if err != nil {
		return nil, ex.Wrap(err)
	}
	return dstRoot, nil
}

func (ap *AstParser) FindPosition(node dst.Node) token.Position {
	astNode := ap.dec.Ast.Nodes[node]
	if astNode == nil {
		return token.Position{Filename: "", Line: -1, Column: -1} // Invalid
	}
	return ap.fset.Position(astNode.Pos())
}

func WriteFile(filePath string, root *dst.File) error {
	file, err := os.Create(filePath)
	if err != nil {
		return ex.Wrapf(err, "failed to create file %s", filePath)
	}
	defer file.Close()
	r := decorator.NewRestorer()
	err = r.Fprint(file, root)
	if err != nil {
		return ex.Wrapf(err, "failed to write to file %s", filePath)
	}
	return nil
}

// ParseFast parses the AST from a file with the skip object resolution
// mode. Comments are kept as directives are matched on them.
func (ap *AstParser) ParseFast(filePath string) (*dst.File, error) {
	return ap.Parse(filePath, parser.SkipObjectResolution|parser.ParseComments)
}
