package views

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

const defaultAvatarSide = 125

var (
	defaultAvatarOnce sync.Once
	defaultAvatar     []byte
)

// DefaultAvatar returns the placeholder picture served for users that never
// uploaded one: a grey disc on a light background.
func DefaultAvatar() []byte {
	defaultAvatarOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, defaultAvatarSide, defaultAvatarSide))
		bg := color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
		fg := color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}

		c := defaultAvatarSide / 2
		r2 := (c - 8) * (c - 8)
		for y := 0; y < defaultAvatarSide; y++ {
			for x := 0; x < defaultAvatarSide; x++ {
				dx, dy := x-c, y-c
				if dx*dx+dy*dy <= r2 {
					img.Set(x, y, fg)
				} else {
					img.Set(x, y, bg)
				}
			}
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err == nil {
			defaultAvatar = buf.Bytes()
		}
	})
	return defaultAvatar
}
