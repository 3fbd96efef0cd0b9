package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/jpeg"

	"github.com/fogleman/gg"
)

const (
	tileWidth  = 320
	tileHeight = 200
)

// GlossTile draws the picture-gloss card for one word: the L2 surface form
// above its L1 gloss. Projects with uses_picture_glossing show these in the
// hover popup.
func GlossTile(word, gloss, style string) ([]byte, error) {
	dc := gg.NewContext(tileWidth, tileHeight)
	switch style {
	case "dark":
		dc.SetRGB(0.13, 0.13, 0.17)
	default:
		dc.SetRGB(0.99, 0.98, 0.92)
	}
	dc.Clear()

	if style == "dark" {
		dc.SetRGB(0.95, 0.93, 0.85)
	} else {
		dc.SetRGB(0.15, 0.15, 0.2)
	}
	dc.DrawStringWrapped(word, tileWidth/2, tileHeight*0.35, 0.5, 0.5, tileWidth-40, 1.3, gg.AlignCenter)

	dc.SetRGB(0.35, 0.45, 0.3)
	dc.DrawStringWrapped(gloss, tileWidth/2, tileHeight*0.7, 0.5, 0.5, tileWidth-40, 1.3, gg.AlignCenter)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ensureGlossTile writes the tile for (word, gloss) into the artefact's
// multimedia directory once and returns its file name.
func (c *Composer) ensureGlossTile(ctx context.Context, req Request, word, gloss string) (string, error) {
	sum := sha256.Sum256([]byte(word + "\x00" + gloss + "\x00" + req.Project.PictureGlossStyle))
	name := fmt.Sprintf("tile_%s.jpg", hex.EncodeToString(sum[:8]))
	key := multimediaKey(req.Project.InternalID, req.Kind, name)
	ok, err := c.fs.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		return name, nil
	}
	tile, err := GlossTile(word, gloss, req.Project.PictureGlossStyle)
	if err != nil {
		return "", err
	}
	if err := c.fs.Write(ctx, key, tile); err != nil {
		return "", err
	}
	return name, nil
}
