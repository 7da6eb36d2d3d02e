package crawler

import (
	"fmt"
	"io"
	"strings"
)

// NoParent is the parent id of the root node
const NoParent = -1

// Node is one crawled URL. Parent and Children are ids into the owning Tree.
type Node struct {
	ID                int
	URL               string
	Depth             int
	Parent            int
	Children          []int
	Title             string
	Text              string
	StructuralContent string
}

// Tree is the arena of nodes produced by one crawl. Node 0 is the root.
type Tree struct {
	MaxDepth int
	Stats    CrawlStats

	nodes   []*Node
	visited *VisitedSet
}

func newTree(rootURL string, maxDepth int) *Tree {
	t := &Tree{
		MaxDepth: maxDepth,
		visited:  NewVisitedSet(),
	}
	t.visited.MarkIfNotVisited(rootURL)
	t.nodes = append(t.nodes, &Node{ID: 0, URL: rootURL, Parent: NoParent})
	return t
}

// addChild appends a new node under parent and returns it
func (t *Tree) addChild(parent *Node, url string) *Node {
	child := &Node{
		ID:     len(t.nodes),
		URL:    url,
		Depth:  parent.Depth + 1,
		Parent: parent.ID,
	}
	t.nodes = append(t.nodes, child)
	parent.Children = append(parent.Children, child.ID)
	return child
}

// Root returns the root node
func (t *Tree) Root() *Node { return t.nodes[0] }

// Node returns the node with the given id, or nil
func (t *Tree) Node(id int) *Node {
	if id < 0 || id >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len returns the number of nodes
func (t *Tree) Len() int { return len(t.nodes) }

// Visited returns the crawl's visited set
func (t *Tree) Visited() *VisitedSet { return t.visited }

// Nodes returns all nodes in discovery (breadth-first) order
func (t *Tree) Nodes() []*Node { return t.nodes }

// Walk visits nodes depth-first in pre-order. Returning false from fn skips
// the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var walk func(id int)
	walk = func(id int) {
		n := t.nodes[id]
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(0)
}

// Text joins the non-empty text of every node in discovery order
func (t *Tree) Text() string {
	var parts []string
	for _, n := range t.nodes {
		if text := strings.TrimSpace(n.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Print writes an indented outline of the tree
func (t *Tree) Print(w io.Writer) error {
	var err error
	t.Walk(func(n *Node) bool {
		if err != nil {
			return false
		}
		_, err = fmt.Fprintf(w, "%s└── %s (Depth: %d)\n", strings.Repeat(" ", n.Depth*4), n.URL, n.Depth)
		return true
	})
	return err
}
