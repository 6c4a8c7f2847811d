// Package main implements an import layering linter.
//
// It scans non-test Go files under pkg/ and fails when a package imports
// something its layer forbids, such as the signing core reaching for an HTTP
// stack or a provider SDK.
//
// Usage:
//
//	go run ./tools/layercheck [-root <project-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const modulePath = "github.com/Steve-IX/Ezra/"

// rules maps a package directory under pkg/ to forbidden import path
// fragments. A rule on a directory covers its subdirectories.
var rules = map[string][]string{
	"contracts":    {modulePath, "net/http"},
	"canonicalize": {modulePath + "pkg/crypto", "net/http"},
	"crypto":       {modulePath + "pkg/llm", modulePath + "pkg/api", modulePath + "pkg/agent", "net/http"},
	"risk":         {modulePath + "pkg/llm", modulePath + "pkg/api", "net/http"},
	"planner":      {modulePath + "pkg/crypto", modulePath + "pkg/api", "net/http"},
	"llm":          {modulePath + "pkg/crypto", modulePath + "pkg/agent", modulePath + "pkg/api"},
	"agent":        {modulePath + "pkg/api", modulePath + "pkg/auth", "net/http"},
	"api":          {modulePath + "pkg/auth"},
	"store":        {modulePath + "pkg/agent", modulePath + "pkg/api"},
	"artifacts":    {modulePath + "pkg/agent", modulePath + "pkg/api"},
	"events":       {modulePath + "pkg/agent", modulePath + "pkg/api"},
}

// Violation is one forbidden import.
type Violation struct {
	File     string
	Line     int
	Import   string
	Fragment string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d imports %q (forbidden: %q)", v.File, v.Line, v.Import, v.Fragment)
}

func main() {
	root := flag.String("root", ".", "Project root directory")
	flag.Parse()
	os.Exit(run(*root, os.Stdout, os.Stderr))
}

func run(root string, stdout, stderr io.Writer) int {
	violations, err := check(root)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, v := range violations {
		fmt.Fprintf(stdout, "LAYER VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		fmt.Fprintf(stdout, "\n%d layering violation(s) found\n", len(violations))
		return 1
	}
	fmt.Fprintln(stdout, "layering check passed")
	return 0
}

func check(root string) ([]Violation, error) {
	pkgDir := filepath.Join(root, "pkg")
	if _, err := os.Stat(pkgDir); err != nil {
		return nil, err
	}

	var violations []Violation
	fset := token.NewFileSet()
	err := filepath.Walk(pkgDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, _ := filepath.Rel(pkgDir, path)
		top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		forbidden := rules[top]
		if len(forbidden) == 0 {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		self := modulePath + "pkg/" + top
		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if importPath == self || strings.HasPrefix(importPath, self+"/") {
				continue
			}
			for _, frag := range forbidden {
				if strings.Contains(importPath, frag) {
					pos := fset.Position(imp.Pos())
					file, _ := filepath.Rel(root, pos.Filename)
					violations = append(violations, Violation{File: file, Line: pos.Line, Import: importPath, Fragment: frag})
				}
			}
		}
		return nil
	})
	return violations, err
}
