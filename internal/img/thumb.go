// internal/img/thumb.go
package img

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

// Codec decodes source bytes into pixels and encodes pixels into the fixed
// output format.
type Codec interface {
	Decode(r io.Reader) (image.Image, error)
	Encode(w io.Writer, src image.Image) error
	// Format is the output format name, e.g. "png".
	Format() string
}

// ImagingCodec implements Codec with the imaging library. Decoding accepts
// every format imaging understands (png, jpeg, gif, bmp, tiff); encoding always
// uses Output.
type ImagingCodec struct {
	Output imaging.Format
}

// NewCodec returns a codec that always writes PNG.
func NewCodec() *ImagingCodec {
	return &ImagingCodec{Output: imaging.PNG}
}

func (c *ImagingCodec) Decode(r io.Reader) (image.Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode: empty image %dx%d", b.Dx(), b.Dy())
	}
	return src, nil
}

func (c *ImagingCodec) Encode(w io.Writer, src image.Image) error {
	if err := imaging.Encode(w, src, c.Output); err != nil {
		return fmt.Errorf("encode %s: %w", c.Format(), err)
	}
	return nil
}

func (c *ImagingCodec) Format() string {
	return strings.ToLower(c.Output.String())
}

// Rows is a half-open range of pixel rows, relative to the top of the image.
type Rows struct {
	Start int
	End   int
}

// FullHeight covers every row of src.
func FullHeight(src image.Image) Rows {
	return Rows{Start: 0, End: src.Bounds().Dy()}
}

// clamp restricts r to [0, height) and reports whether anything is left.
func (r Rows) clamp(height int) (Rows, bool) {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > height {
		r.End = height
	}
	return r, r.Start < r.End
}

// applyRows runs fn over the given rows of src and leaves the remaining rows
// untouched. The result always has its origin at (0, 0).
func applyRows(src image.Image, rows Rows, fn func(image.Image) *image.NRGBA) *image.NRGBA {
	b := src.Bounds()
	rows, ok := rows.clamp(b.Dy())
	if !ok {
		return imaging.Clone(src)
	}
	if rows.Start == 0 && rows.End == b.Dy() {
		return fn(src)
	}

	dst := imaging.Clone(src)
	region := image.Rect(0, rows.Start, b.Dx(), rows.End)
	return imaging.Paste(dst, fn(imaging.Crop(dst, region)), region.Min)
}
