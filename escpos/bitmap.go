package escpos

// Bitmap is a 1-bit image packed MSB first, row-major, each row padded to a
// whole byte. A set bit is a printed dot.
type Bitmap struct {
	Width  int
	Height int
	Data   []byte
}

// NewBitmap allocates a blank bitmap of the given size in dots.
func NewBitmap(width, height int) *Bitmap {
	b := &Bitmap{Width: width, Height: height}
	b.Data = make([]byte, b.BytesPerLine()*height)
	return b
}

// BytesPerLine returns ceil(Width/8).
func (b *Bitmap) BytesPerLine() int {
	return (b.Width + 7) / 8
}

// Set marks the dot at (x, y). Out of range coordinates are ignored.
func (b *Bitmap) Set(x, y int) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	b.Data[y*b.BytesPerLine()+x/8] |= 0x80 >> uint(x%8)
}

// At reports whether the dot at (x, y) is printed.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Data[y*b.BytesPerLine()+x/8]&(0x80>>uint(x%8)) != 0
}
