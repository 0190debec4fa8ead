package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io/fs"
	"os"

	"github.com/nixxel-company-limited/todo-receipts/escpos"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultLogoWidth is the target logo width in printer dots.
const DefaultLogoWidth = 200

// LoadLogo reads the image at path and converts it to a bitmap width dots
// wide. A missing file is not an error: it returns nil, nil and the receipt is
// printed without a logo. A file that cannot be decoded is an error.
func LoadLogo(path string, width int) (*escpos.Bitmap, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open logo: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode logo %s: %w", path, err)
	}
	return FromImage(img, width), nil
}

// FromImage scales img to width dots, keeping the aspect ratio, and
// thresholds every pixel. Widths beyond escpos.PrintableDots are clamped.
// Pixels under half opacity are left blank; the rest are printed when their
// luminance is below 128.
func FromImage(img image.Image, width int) *escpos.Bitmap {
	if width <= 0 {
		width = DefaultLogoWidth
	}
	width = min(width, escpos.PrintableDots)
	scaled := resize(img, width)
	bounds := scaled.Bounds()
	bm := escpos.NewBitmap(bounds.Dx(), bounds.Dy())

	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			c := color.NRGBAModel.Convert(scaled.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			if c.A < 128 {
				continue
			}
			if luminance(c) < 128 {
				bm.Set(x, y)
			}
		}
	}
	return bm
}

func luminance(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

func resize(img image.Image, width int) image.Image {
	src := img.Bounds()
	if src.Dx() == width || src.Dx() == 0 {
		return img
	}
	height := (src.Dy()*width + src.Dx()/2) / src.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}
