// Package render draws the resolved layers of one edition onto a fixed-size
// canvas and encodes the result as PNG (and optionally an animated GIF that
// adds one frame per layer).
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"math/rand/v2"

	colorful "github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/layerforge/internal/layers"
	"github.com/zjrosen/layerforge/internal/log"
)

// Layer is one resolved slot handed to the compositor, in drawing order.
type Layer struct {
	Name        string // trait type
	ElementName string
	Path        string
	Blend       layers.BlendMode
	Opacity     float64
}

// Background configures the fill drawn under the first layer.
type Background struct {
	Generate   bool
	Static     bool
	Default    string  // hex colour used when Static
	Brightness float64 // HSL lightness of generated colours, 0..1
}

// Text configures text-only output, which writes "<layer><spacer><element>"
// lines instead of drawing images.
type Text struct {
	Only   bool
	Color  string
	Spacer string
	XGap   int
	YGap   int
}

// GIF configures the animated export.
type GIF struct {
	Export  bool
	Repeat  int // 0 loops forever, -1 plays once
	DelayMS int
}

// Options configures a Compositor.
type Options struct {
	Width      int
	Height     int
	Smoothing  bool
	Background Background
	Text       Text
	GIF        GIF
}

// Result holds the encoded outputs of one edition.
type Result struct {
	PNG []byte
	GIF []byte // nil unless GIF export is enabled
}

// Compositor owns the drawing surface. It is cleared and redrawn for every
// edition and must not be used by more than one edition at a time.
type Compositor struct {
	opts   Options
	loader Loader
	rng    *rand.Rand
	canvas *image.RGBA
	scaler xdraw.Scaler
}

// NewCompositor returns a compositor drawing assets from loader. rng picks
// generated background colours.
func NewCompositor(opts Options, loader Loader, rng *rand.Rand) (*Compositor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("canvas size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	scaler := xdraw.Scaler(xdraw.NearestNeighbor)
	if opts.Smoothing {
		scaler = xdraw.CatmullRom
	}
	return &Compositor{
		opts:   opts,
		loader: loader,
		rng:    rng,
		canvas: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
		scaler: scaler,
	}, nil
}

// Compose draws layers in order. Layer images are fetched concurrently and
// all of them must load before drawing starts; any failure discards the
// edition with an error wrapping ErrAssetLoad.
func (c *Compositor) Compose(ctx context.Context, ls []Layer) (*Result, error) {
	var images []image.Image
	if !c.opts.Text.Only {
		var err error
		images, err = c.loadAll(ctx, ls)
		if err != nil {
			return nil, err
		}
	}

	log.Debug(log.CatRender, "Clearing canvas")
	draw.Draw(c.canvas, c.canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)

	if c.opts.Background.Generate {
		if err := c.drawBackground(); err != nil {
			return nil, err
		}
	}

	var frames []*image.Paletted
	for i, l := range ls {
		if c.opts.Text.Only {
			if err := c.drawText(fmt.Sprintf("%s%s%s", l.Name, c.opts.Text.Spacer, l.ElementName), i); err != nil {
				return nil, err
			}
		} else {
			composite(c.canvas, c.scale(images[i]), l.Blend, l.Opacity)
		}
		if c.opts.GIF.Export {
			frames = append(frames, c.frame())
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, c.canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	res := &Result{PNG: buf.Bytes()}

	if c.opts.GIF.Export {
		data, err := c.encodeGIF(frames)
		if err != nil {
			return nil, err
		}
		res.GIF = data
	}
	return res, nil
}

func (c *Compositor) loadAll(ctx context.Context, ls []Layer) ([]image.Image, error) {
	images := make([]image.Image, len(ls))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range ls {
		g.Go(func() error {
			img, err := c.loader.Load(gctx, l.Path)
			if err != nil {
				return fmt.Errorf("layer %s (%s): %w", l.Name, l.ElementName, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// scale stretches img to the canvas size.
func (c *Compositor) scale(img image.Image) image.Image {
	if img.Bounds() == c.canvas.Bounds() {
		return img
	}
	dst := image.NewRGBA(c.canvas.Bounds())
	c.scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func (c *Compositor) drawBackground() error {
	var fill colorful.Color
	if c.opts.Background.Static {
		hex, err := colorful.Hex(c.opts.Background.Default)
		if err != nil {
			return fmt.Errorf("background default colour: %w", err)
		}
		fill = hex
	} else {
		hue := float64(c.rng.IntN(360))
		fill = colorful.Hsl(hue, 1, c.opts.Background.Brightness)
	}
	r, g, b := fill.Clamped().RGB255()
	draw.Draw(c.canvas, c.canvas.Bounds(), image.NewUniform(color.RGBA{R: r, G: g, B: b, A: 0xff}), image.Point{}, draw.Src)
	return nil
}

func (c *Compositor) drawText(line string, index int) error {
	ink, err := colorful.Hex(c.opts.Text.Color)
	if err != nil {
		return fmt.Errorf("text colour: %w", err)
	}
	r, g, b := ink.Clamped().RGB255()
	d := font.Drawer{
		Dst:  c.canvas,
		Src:  image.NewUniform(color.RGBA{R: r, G: g, B: b, A: 0xff}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(c.opts.Text.XGap, c.opts.Text.YGap*(index+1)),
	}
	d.DrawString(line)
	return nil
}

func (c *Compositor) frame() *image.Paletted {
	p := image.NewPaletted(c.canvas.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(p, p.Bounds(), c.canvas, image.Point{})
	return p
}

func (c *Compositor) encodeGIF(frames []*image.Paletted) ([]byte, error) {
	anim := &gif.GIF{LoopCount: c.opts.GIF.Repeat}
	for _, f := range frames {
		anim.Image = append(anim.Image, f)
		anim.Delay = append(anim.Delay, c.opts.GIF.DelayMS/10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
