package core

// document.go builds the hierarchical output document from header fields
// and table data.
//
// The tree shape is fixed:
//
//	<root>                  configured report element, default CALLREPORT
//	  HEADER                one leaf per header field, caller order
//	  BODY                  one record per table row, source order
//	    <root>_DATA         one leaf per column, source order
//
// Building is pure: the same inputs always produce a structurally
// identical tree.

import "fmt"

// Node is a tagged tree node. A node carries either child nodes or a text
// value; a leaf with children is never produced by the builder.
type Node struct {
	Name     string
	Text     string
	Children []*Node
}

// leaf creates a text-only node.
func leaf(name, text string) *Node {
	return &Node{Name: name, Text: text}
}

// append adds a child and returns it.
func (n *Node) append(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Builder assembles document trees for a configured report type.
type Builder struct {
	root   string
	record string
}

// NewBuilder creates a Builder for the given root element name. The per-row
// record element is derived as <root>_DATA.
func NewBuilder(root string) *Builder {
	return &Builder{
		root:   root,
		record: root + "_DATA",
	}
}

// Build assembles the document tree from a header field set and a table.
//
// Every row yields exactly one record and every column exactly one leaf per
// record; empty cells become leaves with empty text, never omitted elements.
// Column names pass through SanitizeTag; distinct columns that collapse to
// the same sanitized name are disambiguated with _2, _3... suffixes so no
// sibling element is silently overwritten.
func (b *Builder) Build(header HeaderFieldSet, table *Table) *Node {
	root := &Node{Name: b.root}

	head := root.append(&Node{Name: "HEADER"})
	for _, f := range header {
		head.append(leaf(SanitizeTag(f.Name), f.Value))
	}

	tags := columnTags(table.Columns)

	body := root.append(&Node{Name: "BODY"})
	for _, row := range table.Rows {
		record := body.append(&Node{Name: b.record})
		for i := range table.Columns {
			record.append(leaf(tags[i], row[i]))
		}
	}

	return root
}

// columnTags sanitizes column names and disambiguates collisions in column
// order: the first occurrence keeps the bare name, later ones get a numeric
// suffix. The suffix itself is re-checked so a literal "Col_2" column never
// collides with a generated one. A label that sanitizes to nothing (a blank
// header cell) takes a positional Column_N name so every leaf keeps a valid
// element name.
func columnTags(columns []string) []string {
	tags := make([]string, len(columns))
	used := make(map[string]bool, len(columns))

	for i, col := range columns {
		tag := SanitizeTag(col)
		if tag == "" {
			tag = fmt.Sprintf("Column_%d", i+1)
		}
		if used[tag] {
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s_%d", tag, n)
				if !used[candidate] {
					tag = candidate
					break
				}
			}
		}
		used[tag] = true
		tags[i] = tag
	}

	return tags
}
