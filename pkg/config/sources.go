package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"rigz/pkg/parser"
)

// ExpandSources resolves patterns (`**` allowed) against root, keeping
// pattern order and dropping duplicates. Results are relative to root
// unless the pattern was absolute. A pattern without glob characters is
// kept even if the file is missing, so the loader reports it by name.
func ExpandSources(root string, patterns []string) ([]string, error) {
	if root == "" {
		root = "."
	}
	fsys := os.DirFS(root)

	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			add(pattern)
			continue
		}

		var (
			matches []string
			err     error
		)
		if filepath.IsAbs(pattern) {
			matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		} else {
			matches, err = doublestar.Glob(fsys, filepath.ToSlash(pattern), doublestar.WithFilesOnly())
			for i, m := range matches {
				matches[i] = filepath.FromSlash(m)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

// ParsePrograms parses each file into a Program named after the file.
func ParsePrograms(paths []string, cfg parser.Config) ([]parser.Program, error) {
	programs := make([]parser.Program, 0, len(paths))
	for _, p := range paths {
		prog, err := parser.ParseFile(p, cfg)
		if err != nil {
			return nil, err
		}
		prog.Name = p
		programs = append(programs, prog)
	}
	return programs, nil
}
