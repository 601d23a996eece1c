// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/repofetch/repofetch/pkg/repofetch"
)

// treeNode is one path segment of a printed file tree.
type treeNode struct {
	name     string
	isFile   bool
	children map[string]*treeNode
	entry    repofetch.FileEntry
}

func newTreeNode(name string, isFile bool) *treeNode {
	return &treeNode{name: name, isFile: isFile, children: make(map[string]*treeNode)}
}

func buildFileTree(files []repofetch.FileEntry) *treeNode {
	root := newTreeNode("", false)

	for _, f := range files {
		parts := strings.Split(f.Path, "/")
		current := root
		for i, part := range parts {
			isFile := i == len(parts)-1
			next, exists := current.children[part]
			if !exists {
				next = newTreeNode(part, isFile)
				if isFile {
					next.entry = f
				}
				current.children[part] = next
			}
			current = next
		}
	}
	return root
}

// PrintFileTree renders matched files as a directory tree.
func PrintFileTree(files []repofetch.FileEntry) {
	root := buildFileTree(files)
	printTreeNode(root, "", true)
}

func printTreeNode(n *treeNode, prefix string, isLast bool) {
	if n.name != "" {
		marker := "├── "
		if isLast {
			marker = "└── "
		}
		size := ""
		if n.isFile {
			size = formatTreeSize(n.entry.Size)
		}
		fmt.Printf("%s%s%s %s\n", prefix, marker, n.name, size)
	}

	children := make([]*treeNode, 0, len(n.children))
	for _, c := range n.children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].isFile != children[j].isFile {
			return !children[i].isFile
		}
		return children[i].name < children[j].name
	})

	for i, child := range children {
		newPrefix := prefix
		if n.name != "" {
			if isLast {
				newPrefix += "    "
			} else {
				newPrefix += "│   "
			}
		}
		printTreeNode(child, newPrefix, i == len(children)-1)
	}
}

func formatTreeSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
