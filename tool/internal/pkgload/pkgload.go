// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgload provides utilities for loading Go packages using the go/packages API.
package pkgload

import (
	"context"

	"golang.org/x/tools/go/packages"

	"github.com/entryprobe/entryprobe/tool/ex"
)

// LoadPackages wraps packages.Load with context and build flags.
func LoadPackages(
	ctx context.Context,
	mode packages.LoadMode,
	buildFlags []string,
	patterns ...string,
) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Mode:       mode,
		Context:    ctx,
		BuildFlags: buildFlags,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, ex.Wrapf(err, "loading packages %v", patterns)
	}
	return pkgs, nil
}

// MainPackages loads the packages matched by patterns and keeps the main
// packages that belong to a module, i.e. the ones the build will link.
func MainPackages(ctx context.Context, buildFlags []string, patterns ...string) ([]*packages.Package, error) {
	mode := packages.NeedName | packages.NeedFiles | packages.NeedModule
	pkgs, err := LoadPackages(ctx, mode, buildFlags, patterns...)
	if err != nil {
		return nil, err
	}
	mains := make([]*packages.Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		if pkg.Name != "main" || pkg.Module == nil || len(pkg.Errors) > 0 {
			continue
		}
		mains = append(mains, pkg)
	}
	return mains, nil
}

// ResolveExportFiles returns importPath -> exportFile for a package and all
// transitive dependencies.
func ResolveExportFiles(ctx context.Context, importPath string, buildFlags ...string) (map[string]string, error) {
	mode := packages.NeedName | packages.NeedImports | packages.NeedDeps | packages.NeedExportFile
	pkgs, err := LoadPackages(ctx, mode, buildFlags, importPath)
	if err != nil {
		return nil, err
	}

	if len(pkgs) == 0 {
		return nil, ex.Newf("no packages found for %q", importPath)
	}

	// Check for package-level errors
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, ex.Newf("loading package %q: %v", importPath, pkg.Errors[0])
		}
	}

	result := make(map[string]string)
	visited := make(map[string]bool)

	var walk func(pkg *packages.Package)
	walk = func(pkg *packages.Package) {
		if visited[pkg.PkgPath] {
			return
		}
		visited[pkg.PkgPath] = true

		if pkg.ExportFile != "" {
			result[pkg.PkgPath] = pkg.ExportFile
		}

		for _, dep := range pkg.Imports {
			walk(dep)
		}
	}

	for _, pkg := range pkgs {
		walk(pkg)
	}

	// Verify we found the requested package
	if _, found := result[importPath]; !found {
		return nil, ex.Newf("package %q not found or has no export file", importPath)
	}

	return result, nil
}
