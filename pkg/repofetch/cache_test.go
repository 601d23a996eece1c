// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"testing"
	"time"
)

func TestManifestCache_HitAndMiss(t *testing.T) {
	c := NewManifestCache(time.Minute)
	key := manifestCacheKey("octocat", "hello-world", GitRef{Name: "main", Kind: RefBranch})

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	files := []FileEntry{{Path: "a.txt", Kind: EntryBlob, Size: 10}}
	c.Put(key, files)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != 1 || got[0].Path != "a.txt" {
		t.Fatalf("unexpected cached files: %v", got)
	}
}

func TestManifestCache_Expiry(t *testing.T) {
	c := NewManifestCache(time.Millisecond)
	key := "owner/name@main"
	c.Put(key, []FileEntry{{Path: "a.txt", Kind: EntryBlob}})

	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Fatal("expected expired entry to be treated as a miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted, cache has %d entries", c.Len())
	}
}
