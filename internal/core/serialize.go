package core

// serialize.go renders a document tree as an indented XML byte stream.
//
// Output is byte-stable for identical trees: elements appear one per line,
// nested two spaces per level, in tree order. Text content is escaped with
// the standard library's XML escaper. The document carries no attributes,
// so only element and text escaping applies.

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Serialize renders the document with an XML declaration for the given
// encoding. The byte stream itself is always UTF-8; the declaration records
// the encoding label the caller configured.
func Serialize(doc *Node, encoding string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<?xml version=\"1.0\" encoding=\"%s\"?>\n", encoding)
	if err := writeNode(&buf, doc, 0); err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	return buf.Bytes(), nil
}

// writeNode emits one element per line. Leaves render open, escaped text,
// and close on a single line; containers indent their children one level.
func writeNode(buf *bytes.Buffer, n *Node, depth int) error {
	indent := indentFor(depth)

	if n.IsLeaf() {
		buf.WriteString(indent)
		buf.WriteByte('<')
		buf.WriteString(n.Name)
		buf.WriteByte('>')
		if err := xml.EscapeText(buf, []byte(n.Text)); err != nil {
			return err
		}
		buf.WriteString("</")
		buf.WriteString(n.Name)
		buf.WriteString(">\n")
		return nil
	}

	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Name)
	buf.WriteString(">\n")

	for _, child := range n.Children {
		if err := writeNode(buf, child, depth+1); err != nil {
			return err
		}
	}

	buf.WriteString(indent)
	buf.WriteString("</")
	buf.WriteString(n.Name)
	buf.WriteString(">\n")
	return nil
}

// indentFor returns two spaces per nesting level.
func indentFor(depth int) string {
	const pad = "                                                  " // 25 levels
	n := depth * 2
	if n <= len(pad) {
		return pad[:n]
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	return string(out)
}
