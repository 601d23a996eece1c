// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"math/rand"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func extSet(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}
	return m
}

// TestFilterFiles_CombinedCriteria exercises include/exclude globs, a size
// range, and an extension filter applied together.
func TestFilterFiles_CombinedCriteria(t *testing.T) {
	files := []FileEntry{
		{Path: "src/main.py", Kind: EntryBlob, Size: 200},
		{Path: "src/test_helper.py", Kind: EntryBlob, Size: 200},
		{Path: "src/small.py", Kind: EntryBlob, Size: 10},
		{Path: "src/large.py", Kind: EntryBlob, Size: 600},
		{Path: "src/docs/readme.md", Kind: EntryBlob, Size: 100},
		{Path: "src/utils/helper.py", Kind: EntryTree, Size: 300},
	}
	criteria := FilterCriteria{
		IncludeGlobs: []string{"src/*.py"},
		ExcludeGlobs: []string{"*/test_*.py"},
		MinSize:      int64p(50),
		MaxSize:      int64p(500),
		IncludedExts: extSet(".py"),
	}

	result := FilterFiles(files, criteria)

	if result.Total != 6 {
		t.Fatalf("expected total=6, got %d", result.Total)
	}
	if result.Filtered != 1 {
		t.Fatalf("expected filtered=1, got %d", result.Filtered)
	}
	if len(result.Included) != 1 || result.Included[0].Path != "src/main.py" {
		t.Fatalf("expected included=[src/main.py], got %v", result.Included)
	}
}

// TestFilterFiles_GlobCrossesSeparator asserts the deliberately
// non-standard '*' semantics: it matches across '/'.
func TestFilterFiles_GlobCrossesSeparator(t *testing.T) {
	files := []FileEntry{
		{Path: "docs/x.md", Kind: EntryBlob, Size: 10},
		{Path: "x.md", Kind: EntryBlob, Size: 10},
	}
	criteria := FilterCriteria{IncludeGlobs: []string{"*.md"}}

	result := FilterFiles(files, criteria)
	if result.Filtered != 2 {
		t.Fatalf("expected both entries to match '*.md' across '/', got %d", result.Filtered)
	}
}

// TestFilterFiles_HiddenSegments verifies the hidden-path rejection rule.
func TestFilterFiles_HiddenSegments(t *testing.T) {
	files := []FileEntry{
		{Path: ".github/workflows/ci.yml", Kind: EntryBlob, Size: 10},
		{Path: "src/.env", Kind: EntryBlob, Size: 10},
		{Path: "src/main.go", Kind: EntryBlob, Size: 10},
	}

	hidden := FilterFiles(files, FilterCriteria{})
	if hidden.Filtered != 1 || hidden.Included[0].Path != "src/main.go" {
		t.Fatalf("expected only src/main.go with hidden excluded, got %v", hidden.Included)
	}

	shown := FilterFiles(files, FilterCriteria{IncludeHidden: true})
	if shown.Filtered != 3 {
		t.Fatalf("expected all 3 entries with include_hidden=true, got %d", shown.Filtered)
	}
}

// TestFilterFiles_TreesAndSymlinksNeverMatch covers rule 1.
func TestFilterFiles_TreesAndSymlinksNeverMatch(t *testing.T) {
	files := []FileEntry{
		{Path: "a", Kind: EntryTree, Size: 0},
		{Path: "b", Kind: EntrySymlink, Size: 0},
		{Path: "c", Kind: EntryBlob, Size: 0},
	}
	result := FilterFiles(files, FilterCriteria{})
	if result.Filtered != 1 || result.Included[0].Path != "c" {
		t.Fatalf("expected only blob 'c' to match, got %v", result.Included)
	}
}

// TestFilterFiles_PartitionInvariant checks P2: included + excluded == total, disjoint.
func TestFilterFiles_PartitionInvariant(t *testing.T) {
	files := []FileEntry{
		{Path: "a.go", Kind: EntryBlob, Size: 5},
		{Path: "b.txt", Kind: EntryBlob, Size: 5},
		{Path: "c.md", Kind: EntryBlob, Size: 5},
	}
	criteria := FilterCriteria{IncludedExts: extSet(".go", ".md")}
	result := FilterFiles(files, criteria)

	if len(result.Included)+len(result.Excluded) != len(files) {
		t.Fatalf("P2 violated: included=%d excluded=%d total=%d",
			len(result.Included), len(result.Excluded), len(files))
	}
	seen := map[string]bool{}
	for _, f := range result.Included {
		seen[f.Path] = true
	}
	for _, f := range result.Excluded {
		if seen[f.Path] {
			t.Fatalf("P2 violated: %q present in both included and excluded", f.Path)
		}
	}
}

// TestFilterFiles_OrderIndependent checks P3: permuting input does not
// change the included set.
func TestFilterFiles_OrderIndependent(t *testing.T) {
	files := []FileEntry{
		{Path: "a.go", Kind: EntryBlob, Size: 5},
		{Path: "b.txt", Kind: EntryBlob, Size: 5},
		{Path: "c.go", Kind: EntryBlob, Size: 5},
		{Path: "d.go", Kind: EntryBlob, Size: 5},
	}
	criteria := FilterCriteria{IncludedExts: extSet(".go")}

	base := FilterFiles(files, criteria)
	baseSet := map[string]bool{}
	for _, f := range base.Included {
		baseSet[f.Path] = true
	}

	permuted := make([]FileEntry, len(files))
	copy(permuted, files)
	rand.New(rand.NewSource(1)).Shuffle(len(permuted), func(i, j int) {
		permuted[i], permuted[j] = permuted[j], permuted[i]
	})

	result := FilterFiles(permuted, criteria)
	if len(result.Included) != len(baseSet) {
		t.Fatalf("P3 violated: included set size changed after permutation")
	}
	for _, f := range result.Included {
		if !baseSet[f.Path] {
			t.Fatalf("P3 violated: %q included after permutation but not before", f.Path)
		}
	}
}
