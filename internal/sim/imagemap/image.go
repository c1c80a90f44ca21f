package imagemap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"voxelparallax.ai/internal/sim/mathx"
)

var (
	ErrEmptyImage     = errors.New("imagemap: image has no pixels")
	ErrUnknownChannel = errors.New("imagemap: unknown channel")
)

// Channel converts a pixel into a number in [0, 1].
type Channel int

const (
	Red Channel = iota
	Green
	Blue
	Alpha
	Hue
	Saturation
	Brightness
	CompositeRGB
	CompositeRGBA
	CompositeHSB
	CompositeAddRGB
	CompositeAddRGBA
	CompositeAddHSB
	CompositeMulRGB
	CompositeMulRGBA
	CompositeMulHSB
)

var channelNames = [...]string{
	Red:              "RED",
	Green:            "GREEN",
	Blue:             "BLUE",
	Alpha:            "ALPHA",
	Hue:              "HUE",
	Saturation:       "SATURATION",
	Brightness:       "BRIGHTNESS",
	CompositeRGB:     "COMPOSITE_RGB",
	CompositeRGBA:    "COMPOSITE_RGBA",
	CompositeHSB:     "COMPOSITE_HSB",
	CompositeAddRGB:  "COMPOSITE_ADD_RGB",
	CompositeAddRGBA: "COMPOSITE_ADD_RGBA",
	CompositeAddHSB:  "COMPOSITE_ADD_HSB",
	CompositeMulRGB:  "COMPOSITE_MUL_RGB",
	CompositeMulRGBA: "COMPOSITE_MUL_RGBA",
	CompositeMulHSB:  "COMPOSITE_MUL_HSB",
}

func (c Channel) Valid() bool { return c >= Red && int(c) < len(channelNames) }

func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

func ParseChannel(s string) (Channel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range channelNames {
		if n == s {
			return Channel(i), nil
		}
	}
	return Red, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, int(c))
	}
	return []byte(channelNames[c]), nil
}

func (c *Channel) UnmarshalText(b []byte) error {
	v, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Image is a decoded raster. It is immutable after construction.
type Image struct {
	width, height int
	px            []color.NRGBA
}

func NewImage(img image.Image) (*Image, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	out := &Image{
		width:  b.Dx(),
		height: b.Dy(),
		px:     make([]color.NRGBA, b.Dx()*b.Dy()),
	}
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			out.px[x+y*out.width] = color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
		}
	}
	return out, nil
}

// Decode reads png, jpeg, gif, bmp, tiff or webp data.
func Decode(r io.Reader) (*Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	out, err := NewImage(img)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return out, nil
}

func (i *Image) Width() int  { return i.width }
func (i *Image) Height() int { return i.height }

// Value extracts channel ch at pixel (x, z). Out-of-range coordinates are
// clamped to the nearest edge pixel.
func (i *Image) Value(ch Channel, x, z int) float64 {
	x = mathx.ClampInt(x, 0, i.width-1)
	z = mathx.ClampInt(z, 0, i.height-1)
	p := i.px[x+z*i.width]
	r := float64(p.R) / 255
	g := float64(p.G) / 255
	b := float64(p.B) / 255
	a := float64(p.A) / 255

	hsb := func() (float64, float64, float64) {
		h, s, v := colorful.Color{R: r, G: g, B: b}.Hsv()
		return h / 360, s, v
	}

	switch ch {
	case Red:
		return r
	case Green:
		return g
	case Blue:
		return b
	case Alpha:
		return a
	case Hue:
		h, _, _ := hsb()
		return h
	case Saturation:
		_, s, _ := hsb()
		return s
	case Brightness:
		_, _, v := hsb()
		return v
	case CompositeRGB:
		return (r + g + b) / 3
	case CompositeRGBA:
		return (r + g + b + a) / 4
	case CompositeHSB:
		h, s, v := hsb()
		return (h + s + v) / 3
	case CompositeAddRGB:
		return mathx.Clamp(r+g+b, 0, 1)
	case CompositeAddRGBA:
		return mathx.Clamp(r+g+b+a, 0, 1)
	case CompositeAddHSB:
		h, s, v := hsb()
		return mathx.Clamp(h+s+v, 0, 1)
	case CompositeMulRGB:
		return r * g * b
	case CompositeMulRGBA:
		return r * g * b * a
	case CompositeMulHSB:
		h, s, v := hsb()
		return h * s * v
	}
	return 0
}
