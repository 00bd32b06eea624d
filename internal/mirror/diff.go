package mirror

import (
	"image"
	"image/color"
)

type Pixel struct {
	X     int
	Y     int
	Color color.NRGBA
}

// TileDiff lists the blueprint pixels missing from a tile, column by column,
// and their bounding box.
type TileDiff struct {
	Pixels []Pixel
	Bounds image.Rectangle
}

// Diff compares current against blueprint. A blueprint pixel that is not
// fully transparent black and differs from the current pixel is missing.
// Pixels outside either image are ignored.
func Diff(current, blueprint *image.NRGBA) TileDiff {
	var d TileDiff
	area := current.Bounds().Intersect(blueprint.Bounds())
	for x := area.Min.X; x < area.Max.X; x++ {
		for y := area.Min.Y; y < area.Max.Y; y++ {
			bp := blueprint.NRGBAAt(x, y)
			if bp == (color.NRGBA{}) || bp == current.NRGBAAt(x, y) {
				continue
			}
			bp.A = 255
			d.Pixels = append(d.Pixels, Pixel{X: x, Y: y, Color: bp})
			r := image.Rect(x, y, x+1, y+1)
			if len(d.Pixels) == 1 {
				d.Bounds = r
			} else {
				d.Bounds = d.Bounds.Union(r)
			}
		}
	}
	return d
}

// Highlight paints a translucent box around the missing pixels, with a
// margin, then draws the missing pixels in their blueprint color.
func Highlight(img *image.NRGBA, d TileDiff) {
	if len(d.Pixels) == 0 {
		return
	}
	box := d.Bounds.Inset(-highlightMargin).Intersect(img.Bounds())
	for x := box.Min.X; x < box.Max.X; x++ {
		for y := box.Min.Y; y < box.Max.Y; y++ {
			img.SetNRGBA(x, y, highlight)
		}
	}
	for _, p := range d.Pixels {
		img.SetNRGBA(p.X, p.Y, p.Color)
	}
}
