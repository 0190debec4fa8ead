package escpos

import "bytes"

// Document is an ordered sequence of printer commands. It is built by
// appending and turned into the wire format once, by Bytes.
type Document struct {
	cmds []Command
}

// NewDocument returns a document holding cmds in order.
func NewDocument(cmds ...Command) Document {
	return Document{}.Append(cmds...)
}

// Append returns a new document with cmds added after the existing commands.
// The receiver is left untouched.
func (d Document) Append(cmds ...Command) Document {
	next := make([]Command, 0, len(d.cmds)+len(cmds))
	next = append(next, d.cmds...)
	next = append(next, cmds...)
	return Document{cmds: next}
}

// Commands returns a copy of the command sequence.
func (d Document) Commands() []Command {
	out := make([]Command, len(d.cmds))
	copy(out, d.cmds)
	return out
}

// Len returns the number of commands.
func (d Document) Len() int {
	return len(d.cmds)
}

// Bytes serializes every command in order.
func (d Document) Bytes() []byte {
	var buf bytes.Buffer
	for _, c := range d.cmds {
		c.encode(&buf)
	}
	return buf.Bytes()
}

// Encode serializes a single command.
func Encode(c Command) []byte {
	var buf bytes.Buffer
	c.encode(&buf)
	return buf.Bytes()
}
