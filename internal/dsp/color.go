package dsp

import "math"

// RGBA is a color with components in [0, 1], ported from
// image-utils/Color.cpp's internal representation. Alpha is carried
// through every conversion unchanged.
type RGBA struct {
	R, G, B, A float64
}

// Clamp restricts all channels to [0, 1].
func (c RGBA) Clamp() RGBA {
	clamp01 := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return RGBA{clamp01(c.R), clamp01(c.G), clamp01(c.B), clamp01(c.A)}
}

// ToHSV converts RGB to hue/saturation/value, each in [0, 1] (hue scaled
// from the usual 0-360 range), matching Color.cpp's rgb2hsv.
func (c RGBA) ToHSV() (h, s, v float64) {
	maxC := math.Max(c.R, math.Max(c.G, c.B))
	minC := math.Min(c.R, math.Min(c.G, c.B))
	delta := maxC - minC

	v = maxC
	if maxC == 0 {
		s = 0
	} else {
		s = delta / maxC
	}

	if delta == 0 {
		h = 0
	} else {
		switch maxC {
		case c.R:
			h = math.Mod((c.G-c.B)/delta, 6)
		case c.G:
			h = (c.B-c.R)/delta + 2
		default:
			h = (c.R-c.G)/delta + 4
		}
		h /= 6
		if h < 0 {
			h += 1
		}
	}
	return h, s, v
}

// HSVToRGB is the inverse of ToHSV, matching Color.cpp's hsv2rgb.
func HSVToRGB(h, s, v, a float64) RGBA {
	if s <= 0 {
		return RGBA{v, v, v, a}
	}
	h = math.Mod(h, 1)
	if h < 0 {
		h += 1
	}
	h6 := h * 6
	i := int(math.Floor(h6))
	f := h6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch i % 6 {
	case 0:
		return RGBA{v, t, p, a}
	case 1:
		return RGBA{q, v, p, a}
	case 2:
		return RGBA{p, v, t, a}
	case 3:
		return RGBA{p, q, v, a}
	case 4:
		return RGBA{t, p, v, a}
	default:
		return RGBA{v, p, q, a}
	}
}

// HSVToHSL converts HSV to hue/saturation/lightness, matching
// Color.cpp's hsv2hsl.
func HSVToHSL(h, s, v float64) (hh, sl, l float64) {
	l = v * (1 - s/2)
	if l == 0 || l == 1 {
		sl = 0
	} else {
		sl = (v - l) / math.Min(l, 1-l)
	}
	return h, sl, l
}

// HSLToHSV converts hue/saturation/lightness back to HSV, matching
// Color.cpp's hsl2hsv.
func HSLToHSV(h, sl, l float64) (hh, s, v float64) {
	v = l + sl*math.Min(l, 1-l)
	if v == 0 {
		s = 0
	} else {
		s = 2 * (1 - l/v)
	}
	return h, s, v
}

// ToYCbCr converts RGB (BT.601 full range) to luma/chroma, matching
// Color.cpp's rgb2ycbcr.
func (c RGBA) ToYCbCr() (y, cb, cr float64) {
	y = 0.299*c.R + 0.587*c.G + 0.114*c.B
	cb = (c.B-y)/1.772 + 0.5
	cr = (c.R-y)/1.402 + 0.5
	return y, cb, cr
}

// YCbCrToRGB is the inverse of ToYCbCr, matching Color.cpp's ycbcr2rgb.
func YCbCrToRGB(y, cb, cr, a float64) RGBA {
	r := y + 1.402*(cr-0.5)
	b := y + 1.772*(cb-0.5)
	g := (y - 0.299*r - 0.114*b) / 0.587
	return RGBA{r, g, b, a}
}

// IntColor is a fixed-point BGRA pixel (8 bits per channel, straight
// alpha: colour channels are not multiplied by alpha), the
// representation StripedImage keeps pixels in for
// cheap blending without float round trips on every strip push.
type IntColor struct {
	B, G, R, A uint8
}

// FromRGBA quantizes a float RGBA color into an IntColor.
func FromRGBA(c RGBA) IntColor {
	c = c.Clamp()
	toByte := func(v float64) uint8 { return uint8(math.Round(v * 255)) }
	return IntColor{B: toByte(c.B), G: toByte(c.G), R: toByte(c.R), A: toByte(c.A)}
}

// ToRGBA widens an IntColor back to float components in [0, 1].
func (c IntColor) ToRGBA() RGBA {
	return RGBA{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255, A: float64(c.A) / 255}
}

// Mix alpha-blends src over dst using src's alpha as the mix weight, the
// integer blend StripedImageFadeHelper uses to draw borders and fade
// strips without leaving the fixed-point representation.
func (dst IntColor) Mix(src IntColor) IntColor {
	a := uint32(src.A)
	inv := 255 - a
	blend := func(d, s uint8) uint8 {
		return uint8((uint32(d)*inv + uint32(s)*a) / 255)
	}
	return IntColor{
		B: blend(dst.B, src.B),
		G: blend(dst.G, src.G),
		R: blend(dst.R, src.R),
		A: uint8(math.Min(255, float64(dst.A)+float64(src.A))),
	}
}
