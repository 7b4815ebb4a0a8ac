package main

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "github.com/conneroisu/sitesmith/"

// importGraph maps every package under moduleDir/internal, named by its path
// inside the module, to the module-local packages its non-test files import.
func importGraph(moduleDir string) (map[string][]string, error) {
	graph := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	err := filepath.WalkDir(filepath.Join(moduleDir, "internal"), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".go") || strings.HasSuffix(p, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(token.NewFileSet(), p, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(moduleDir, filepath.Dir(p))
		if err != nil {
			return err
		}
		pkg := filepath.ToSlash(rel)
		if seen[pkg] == nil {
			seen[pkg] = make(map[string]bool)
			graph[pkg] = nil
		}
		for _, imp := range node.Imports {
			target := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(target, modulePath) {
				continue
			}
			local := strings.TrimPrefix(target, modulePath)
			if !seen[pkg][local] {
				seen[pkg][local] = true
				graph[pkg] = append(graph[pkg], local)
			}
		}
		return nil
	})

	return graph, err
}

// findCycles returns each cycle once, as "a -> b -> a".
func findCycles(graph map[string][]string) []string {
	pkgs := make([]string, 0, len(graph))
	for pkg := range graph {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var stack []string
	var cycles []string

	var visit func(pkg string)
	visit = func(pkg string) {
		state[pkg] = visiting
		stack = append(stack, pkg)

		for _, next := range graph[pkg] {
			switch state[next] {
			case unvisited:
				if _, ok := graph[next]; ok {
					visit(next)
				}
			case visiting:
				for i, p := range stack {
					if p == next {
						cycle := append(append([]string{}, stack[i:]...), next)
						cycles = append(cycles, strings.Join(cycle, " -> "))
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[pkg] = done
	}

	for _, pkg := range pkgs {
		if state[pkg] == unvisited {
			visit(pkg)
		}
	}

	return cycles
}
