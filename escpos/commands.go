package escpos

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Control bytes
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Width is the fixed monospace column count every receipt row is laid out at
// (80mm paper, Font A, minus the left margin).
const Width = 40

// PrintableDots is the widest raster the print head covers (80mm at 203 dpi).
const PrintableDots = 576

// maxRasterRows is the largest height one GS v 0 header can describe.
const maxRasterRows = 0xFFFF

// Alignment selects the justification used by ESC a.
type Alignment byte

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// Print mode flags for ESC !
const (
	ModeNormal       byte = 0x00
	ModeEmphasized   byte = 0x08
	ModeDoubleHeight byte = 0x10
	ModeDoubleWidth  byte = 0x20
)

// QR error correction level M. Not configurable.
const qrLevelM = 0x31

// Command is a single printer instruction. The set of implementations is
// closed to this package.
type Command interface {
	encode(buf *bytes.Buffer)
}

// Initialize resets the printer (ESC @).
type Initialize struct{}

// LeftMargin sets the left margin in motion units (GS L).
type LeftMargin struct {
	Dots uint16
}

// Align selects justification (ESC a).
type Align struct {
	Mode Alignment
}

// Bold toggles emphasized printing (ESC E).
type Bold struct {
	On bool
}

// PrintMode selects character size and emphasis flags (ESC !).
type PrintMode struct {
	Flags byte
}

// Line prints UTF-8 text followed by a line feed.
type Line struct {
	Text string
}

// Rule prints Char repeated across the full print width.
type Rule struct {
	Char rune
}

// TwoColumn prints a left-aligned label and a right-aligned value.
type TwoColumn struct {
	Left  string
	Right string
}

// QRCode stores and prints a model 2 QR symbol (GS ( k).
type QRCode struct {
	Data     string
	CellSize byte
}

// Raster prints a 1-bit bitmap (GS v 0). Bitmaps taller than one header
// can describe are sent as consecutive bands.
type Raster struct {
	Image *Bitmap
}

// Cut performs a partial cut with feed (GS V 66).
type Cut struct{}

func (Initialize) encode(buf *bytes.Buffer) {
	buf.Write([]byte{ESC, 0x40})
}

func (c LeftMargin) encode(buf *bytes.Buffer) {
	buf.Write([]byte{GS, 0x4C, byte(c.Dots), byte(c.Dots >> 8)})
}

func (c Align) encode(buf *bytes.Buffer) {
	buf.Write([]byte{ESC, 0x61, byte(c.Mode)})
}

func (c Bold) encode(buf *bytes.Buffer) {
	var n byte
	if c.On {
		n = 1
	}
	buf.Write([]byte{ESC, 0x45, n})
}

func (c PrintMode) encode(buf *bytes.Buffer) {
	buf.Write([]byte{ESC, 0x21, c.Flags})
}

func (c Line) encode(buf *bytes.Buffer) {
	buf.WriteString(c.Text)
	buf.WriteByte(LF)
}

func (c Rule) encode(buf *bytes.Buffer) {
	buf.WriteString(strings.Repeat(string(c.Char), Width))
	buf.WriteByte(LF)
}

func (c TwoColumn) encode(buf *bytes.Buffer) {
	buf.WriteString(FormatTwoColumn(c.Left, c.Right))
	buf.WriteByte(LF)
}

func (c QRCode) encode(buf *bytes.Buffer) {
	// Function 165: select model 2
	buf.Write([]byte{GS, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00})
	// Function 167: cell size
	buf.Write([]byte{GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, c.CellSize})
	// Function 169: error correction level
	buf.Write([]byte{GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, qrLevelM})
	// Function 180: store data
	n := len(c.Data) + 3
	buf.Write([]byte{GS, 0x28, 0x6B, byte(n), byte(n >> 8), 0x31, 0x50, 0x30})
	buf.WriteString(c.Data)
	// Function 181: print stored data
	buf.Write([]byte{GS, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30})
}

func (c Raster) encode(buf *bytes.Buffer) {
	if c.Image == nil {
		return
	}
	x := c.Image.BytesPerLine()
	for top := 0; top < c.Image.Height; top += maxRasterRows {
		y := min(maxRasterRows, c.Image.Height-top)
		buf.Write([]byte{GS, 0x76, 0x30, 0x00, byte(x), byte(x >> 8), byte(y), byte(y >> 8)})
		buf.Write(c.Image.Data[top*x : (top+y)*x])
	}
}

func (Cut) encode(buf *bytes.Buffer) {
	buf.Write([]byte{GS, 0x56, 0x42, 0x03})
}

// FormatTwoColumn pads left and right with spaces so the row spans exactly
// Width columns. When the two fields do not fit, they are joined by a single
// space and neither is truncated, so the row may overflow the paper.
func FormatTwoColumn(left, right string) string {
	gap := Width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if gap < 1 {
		return left + " " + right
	}
	return left + strings.Repeat(" ", gap) + right
}
