package raster

import (
	"fmt"

	"github.com/nixxel-company-limited/todo-receipts/escpos"
	qrcode "github.com/skip2/go-qrcode"
)

// QRCode renders data as a QR symbol at error correction level M, each
// module moduleDots wide, including the quiet zone.
func QRCode(data string, moduleDots int) (*escpos.Bitmap, error) {
	if moduleDots < 1 {
		moduleDots = 1
	}
	q, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	modules := q.Bitmap()
	size := len(modules) * moduleDots
	bm := escpos.NewBitmap(size, size)
	for my, row := range modules {
		for mx, dark := range row {
			if !dark {
				continue
			}
			for dy := 0; dy < moduleDots; dy++ {
				for dx := 0; dx < moduleDots; dx++ {
					bm.Set(mx*moduleDots+dx, my*moduleDots+dy)
				}
			}
		}
	}
	return bm, nil
}
