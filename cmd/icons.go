package cmd

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Tray icons are filled circles; the colour shows the status.
var (
	iconIdle     = circleIcon(color.RGBA{0x8e, 0x8e, 0x93, 0xff})
	iconScanning = circleIcon(color.RGBA{0x34, 0xc7, 0x59, 0xff})
	iconError    = circleIcon(color.RGBA{0xff, 0x3b, 0x30, 0xff})
)

func circleIcon(c color.Color) []byte {
	const size = 22
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	center, radius := float64(size-1)/2, float64(size)/2-2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
