package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/zjrosen/layerforge/internal/layers"
)

// composite draws src over dst with the given blend mode and opacity. Both
// images share dst's bounds.
func composite(dst *image.RGBA, src image.Image, mode layers.BlendMode, opacity float64) {
	if opacity <= 0 {
		return
	}
	if mode == layers.BlendNormal || mode == "" {
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
		draw.DrawMask(dst, dst.Bounds(), src, src.Bounds().Min, mask, image.Point{}, draw.Over)
		return
	}

	fn := blendFunc(mode)
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sr, sg, sb, sa := src.At(x, y).RGBA()
			if sa == 0 {
				continue
			}
			as := float64(sa) / 0xffff * opacity
			cs := unpremultiply(sr, sg, sb, sa)

			d := dst.RGBAAt(x, y)
			ab := float64(d.A) / 0xff
			cb := unpremultiply(uint32(d.R)*0x101, uint32(d.G)*0x101, uint32(d.B)*0x101, uint32(d.A)*0x101)

			// separable blend then source-over; see the W3C compositing model
			var out [3]float64
			ao := as + ab*(1-as)
			for i := range out {
				mixed := (1-ab)*cs[i] + ab*fn(cb[i], cs[i])
				out[i] = as*mixed + ab*cb[i]*(1-as)
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: clamp8(out[0]),
				G: clamp8(out[1]),
				B: clamp8(out[2]),
				A: clamp8(ao),
			})
		}
	}
}

// unpremultiply returns straight colour components in [0,1].
func unpremultiply(r, g, b, a uint32) [3]float64 {
	if a == 0 {
		return [3]float64{}
	}
	fa := float64(a)
	return [3]float64{float64(r) / fa, float64(g) / fa, float64(b) / fa}
}

// clamp8 converts a premultiplied component in [0,1] to a byte.
func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return uint8(math.Round(v * 0xff))
	}
}

func blendFunc(mode layers.BlendMode) func(cb, cs float64) float64 {
	switch mode {
	case layers.BlendMultiply:
		return func(cb, cs float64) float64 { return cb * cs }
	case layers.BlendScreen:
		return screen
	case layers.BlendOverlay:
		return func(cb, cs float64) float64 { return hardLight(cs, cb) }
	case layers.BlendDarken:
		return math.Min
	case layers.BlendLighten:
		return math.Max
	case layers.BlendDifference:
		return func(cb, cs float64) float64 { return math.Abs(cb - cs) }
	default:
		return func(_, cs float64) float64 { return cs }
	}
}

func screen(cb, cs float64) float64 { return cb + cs - cb*cs }

func hardLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return cb * 2 * cs
	}
	return screen(cb, 2*cs-1)
}
