package imagesv2

import (
	"bytes"
	"context"
	"image/jpeg"

	"github.com/fogleman/gg"
)

const (
	placeholderWidth  = 1024
	placeholderHeight = 1024
)

// PlaceholderImage renders a neutral stand-in for a unit whose generation
// failed or has not run, so rendered texts never reference a missing file.
func PlaceholderImage(label string) ([]byte, error) {
	dc := gg.NewContext(placeholderWidth, placeholderHeight)
	dc.SetRGB(0.93, 0.93, 0.93)
	dc.Clear()

	dc.SetRGB(0.75, 0.75, 0.75)
	dc.SetLineWidth(8)
	dc.DrawRectangle(24, 24, placeholderWidth-48, placeholderHeight-48)
	dc.Stroke()

	dc.SetRGB(0.45, 0.45, 0.45)
	dc.DrawStringWrapped(label, placeholderWidth/2, placeholderHeight/2,
		0.5, 0.5, placeholderWidth-120, 1.5, gg.AlignCenter)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnsurePlaceholder writes a placeholder at the unit's promoted image key if
// nothing has been promoted, and reports whether one was written.
func (e *Engine) EnsurePlaceholder(ctx context.Context, internalID string, u Unit) (bool, error) {
	key := PromotedImageKey(internalID, u)
	ok, err := e.fs.Exists(ctx, key)
	if err != nil || ok {
		return false, err
	}
	img, err := PlaceholderImage(u.String())
	if err != nil {
		return false, err
	}
	if err := e.fs.Write(ctx, key, img); err != nil {
		return false, err
	}
	return true, nil
}
