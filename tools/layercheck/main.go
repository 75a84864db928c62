// Command layercheck enforces the import boundary of the simulation core.
//
// The core packages (space, action, events, policy, actor, sim) must stay
// free of persistence, transport and configuration concerns; those live in
// the outer packages and the CLI.
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
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// corePackages are the directories under pkg/ that make up the core.
var corePackages = []string{"space", "action", "events", "policy", "actor", "sim"}

// forbiddenFragments are import path fragments no non-test core file may
// import.
var forbiddenFragments = []string{
	"domovoi/pkg/store",
	"domovoi/pkg/archive",
	"domovoi/pkg/config",
	"domovoi/cmd/",
	"database/sql",
	"net/http",
	"github.com/redis/",
	"github.com/lib/pq",
	"modernc.org/sqlite",
	"github.com/aws/",
	"cloud.google.com/",
	"gopkg.in/yaml",
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
		_, _ = fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, v := range violations {
		_, _ = fmt.Fprintf(stdout, "LAYER VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n%d layer violation(s) found\n", len(violations))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "layer check passed: the simulation core has no outer-layer imports")
	return 0
}

// check parses the imports of every non-test Go file in the core packages.
func check(root string) ([]Violation, error) {
	var out []Violation
	fset := token.NewFileSet()

	for _, pkg := range corePackages {
		dir := filepath.Join(root, "pkg", pkg)
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("core package %s: %w", pkg, err)
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			rel, _ := filepath.Rel(root, path)
			for _, imp := range f.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, frag := range forbiddenFragments {
					if strings.Contains(importPath, frag) {
						out = append(out, Violation{
							File:     filepath.ToSlash(rel),
							Line:     fset.Position(imp.Pos()).Line,
							Import:   importPath,
							Fragment: frag,
						})
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
