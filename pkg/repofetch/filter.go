// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// FilterResult partitions a manifest into included and excluded entries.
type FilterResult struct {
	Included []FileEntry
	Excluded []FileEntry
	Total    int
	Filtered int
}

// FilterFiles decides, per FileEntry, whether it is included under criteria.
// It is a pure function with no I/O. Rejection is conjunctive and
// order-sensitive only in which rule fires first, never in the final
// included set: permuting the input never changes which entries match (P3).
func FilterFiles(files []FileEntry, criteria FilterCriteria) FilterResult {
	result := FilterResult{Total: len(files)}

	includeGlobs := compileGlobs(criteria.IncludeGlobs)
	excludeGlobs := compileGlobs(criteria.ExcludeGlobs)

	for _, f := range files {
		if matches(f, criteria, includeGlobs, excludeGlobs) {
			result.Included = append(result.Included, f)
		} else {
			result.Excluded = append(result.Excluded, f)
		}
	}
	result.Filtered = len(result.Included)
	return result
}

func matches(f FileEntry, c FilterCriteria, include, exclude []glob.Glob) bool {
	// 1. Only blobs ever match.
	if f.Kind != EntryBlob {
		return false
	}

	// 2. target_paths prefix gate.
	if len(c.TargetPaths) > 0 {
		matched := false
		for _, prefix := range c.TargetPaths {
			if strings.HasPrefix(f.Path, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// 3. include_globs: must match at least one.
	if len(include) > 0 {
		matched := false
		for _, g := range include {
			if g.Match(f.Path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// 4. exclude_globs: must match none.
	for _, g := range exclude {
		if g.Match(f.Path) {
			return false
		}
	}

	// 5. hidden-segment gate.
	if !c.IncludeHidden && hasHiddenSegment(f.Path) {
		return false
	}

	ext := strings.ToLower(path.Ext(f.Path))

	// 6. included_exts: must be in the set if non-empty.
	if len(c.IncludedExts) > 0 {
		if _, ok := c.IncludedExts[ext]; !ok {
			return false
		}
	}

	// 7. excluded_exts: must not be in the set.
	if _, ok := c.ExcludedExts[ext]; ok {
		return false
	}

	// 8. size bounds.
	if c.MinSize != nil && f.Size < *c.MinSize {
		return false
	}
	if c.MaxSize != nil && f.Size > *c.MaxSize {
		return false
	}

	return true
}

func hasHiddenSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && seg != "" {
			return true
		}
	}
	return false
}

// compileGlobs compiles POSIX-shell-style globs via gobwas/glob with no
// explicit separator set. This is deliberate: '*' must be able to cross
// path separators — gobwas/glob.Compile(pattern) with zero separator runes
// matches this exactly, unlike path/filepath.Match or path.Match, which
// both stop '*' at '/'. Malformed patterns are dropped rather than
// panicking; a programmer error in a glob should not crash a pure
// filtering pass.
func compileGlobs(patterns []string) []glob.Glob {
	if len(patterns) == 0 {
		return nil
	}
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, g)
	}
	return compiled
}
