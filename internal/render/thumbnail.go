package render

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// thumbWidth is the display width of inline page images; the full-size file
// stays linked behind the thumbnail.
const thumbWidth = 480

// thumbnail downscales an image to thumbWidth, preserving aspect ratio.
// Returns ok=false when the data does not decode or is already small enough,
// in which case the page shows the original file directly.
func thumbnail(data []byte) ([]byte, bool) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	bounds := src.Bounds()
	if bounds.Dx() <= thumbWidth {
		return nil, false
	}
	height := bounds.Dy() * thumbWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, thumbWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
