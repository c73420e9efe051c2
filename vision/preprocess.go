// Package vision prepares uploaded photos for img2img inference and
// normalizes generated output.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image preprocessing errors
var (
	ErrInvalidImage      = errors.New("vision: invalid image data")
	ErrInvalidDimensions = errors.New("vision: invalid dimensions")
	ErrEmptyImage        = errors.New("vision: empty image data")
	ErrEncodeFailed      = errors.New("vision: encode failed")
)

// TargetSize is the square edge the diffusion model is fed and returns.
const TargetSize = 512

// DecodeImage decodes PNG, JPEG, GIF, BMP, TIFF or WebP data.
// The second return value is the format name reported by the decoder.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", ErrInvalidDimensions
	}
	return img, format, nil
}

// ToOpaqueRGBA copies img into a zero-origin RGBA with every pixel fully
// opaque. Alpha is dropped: each pixel keeps its own straight color, so
// transparent areas keep whatever color they carry.
func ToOpaqueRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			s := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			d := dst.Pix[dst.PixOffset(0, y):]
			for x := 0; x < b.Dx(); x++ {
				i := x * 4
				d[i], d[i+1], d[i+2], d[i+3] = s[i], s[i+1], s[i+2], 0xff
			}
		}
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			s := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			d := dst.Pix[dst.PixOffset(0, y):]
			for x := 0; x < b.Dx(); x++ {
				// High byte of each big-endian 16-bit channel.
				d[x*4], d[x*4+1], d[x*4+2], d[x*4+3] = s[x*8], s[x*8+2], s[x*8+4], 0xff
			}
		}
	default:
		if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
			draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
			return dst
		}
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
			}
		}
	}
	return dst
}

// Resize scales img to exactly width x height with Catmull-Rom
// resampling. Aspect ratio is not preserved.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Prepared is an upload ready for inference.
type Prepared struct {
	Image  *image.RGBA
	Format string
	// Source is the decoded size before resizing.
	Source image.Point
}

// PrepareImage decodes an upload, drops alpha and resizes it to a
// size x size square ready for inference.
func PrepareImage(data []byte, size int) (*Prepared, error) {
	if size <= 0 {
		return nil, ErrInvalidDimensions
	}
	img, format, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	p := &Prepared{Format: format, Source: image.Pt(b.Dx(), b.Dy())}
	rgb := ToOpaqueRGBA(img)
	if b.Dx() == size && b.Dy() == size {
		p.Image = rgb
	} else {
		p.Image = Resize(rgb, size, size)
	}
	return p, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

// NormalizePNG checks that data is a decodable PNG of size x size.
// Output of any other size is resized and re-encoded; a PNG that
// already matches is returned unchanged.
func NormalizePNG(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return data, nil
	}
	return EncodePNG(Resize(ToOpaqueRGBA(img), size, size))
}
