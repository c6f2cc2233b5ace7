// Command sqllint checks that every SQL statement in the sqlinline package
// starts with a unique `--sql <uuid>` marker, so a logged marker always
// points at exactly one query.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const defaultTarget = "internal/sqlinline"

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter)\b`)
	markerPattern     = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
}

// statement is a marked SQL constant found in a source file.
type statement struct {
	file   string
	name   string
	line   int
	marker string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{defaultTarget}
	}

	violations, err := lint(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL marker violations")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		os.Exit(1)
	}
}

// lint walks targets (directories or .go files) and reports statements with
// a missing or malformed marker, and markers used more than once.
func lint(targets []string) ([]violation, error) {
	var (
		violations []violation
		statements []statement
	)
	visit := func(path string) error {
		vs, stmts, err := lintFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		statements = append(statements, stmts...)
		return nil
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				if err := visit(target); err != nil {
					return nil, err
				}
			}
			continue
		}
		err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && (strings.HasPrefix(d.Name(), ".") || d.Name() == "vendor") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			return visit(path)
		})
		if err != nil {
			return nil, err
		}
	}

	return append(violations, duplicates(statements)...), nil
}

func duplicates(statements []statement) []violation {
	byMarker := make(map[string][]statement)
	for _, s := range statements {
		byMarker[s.marker] = append(byMarker[s.marker], s)
	}
	var out []violation
	for marker, group := range byMarker {
		if len(group) < 2 {
			continue
		}
		first := group[0]
		for _, s := range group[1:] {
			out = append(out, violation{
				file:    s.file,
				line:    s.line,
				name:    s.name,
				message: fmt.Sprintf("marker %q already used by %s at %s:%d", strings.TrimPrefix(marker, "--sql "), first.name, first.file, first.line),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].file != out[j].file {
			return out[i].file < out[j].file
		}
		return out[i].line < out[j].line
	})
	return out
}

func lintFile(path string) ([]violation, []statement, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}
	var (
		violations []violation
		statements []statement
	)
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			name := joinNames(vs.Names)
			if i < len(vs.Names) {
				name = vs.Names[i].Name
			}
			line := fset.Position(bl.Pos()).Line
			marker := firstLine(raw)
			if !markerPattern.MatchString(marker) {
				violations = append(violations, violation{
					file:    path,
					line:    line,
					name:    name,
					message: "missing or invalid --sql <uuid> marker",
				})
				continue
			}
			statements = append(statements, statement{file: path, name: name, line: line, marker: marker})
		}
		return true
	})
	return violations, statements, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
