// Package imaging turns uploaded raster files into the float tensors the
// classifier was trained on.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// ErrImageDecode is returned when the input is not a decodable raster image.
var ErrImageDecode = errors.New("image decode failed")

// Channels is fixed: the classifier was trained on RGB input.
const Channels = 3

// Tensor is a single image in HWC layout with RGB channel order and values
// scaled to [0,1].
type Tensor struct {
	Height int
	Width  int
	Data   []float32
}

// Normalize decodes data and resizes it to exactly height x width using
// bilinear interpolation. The aspect ratio is not preserved. JPEG EXIF
// orientation is applied and any alpha channel is discarded.
func Normalize(data []byte, height, width int) (Tensor, error) {
	if height <= 0 || width <= 0 {
		return Tensor{}, fmt.Errorf("%w: invalid target size %dx%d", ErrImageDecode, width, height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return Tensor{}, fmt.Errorf("%w: empty image", ErrImageDecode)
	}

	return fromImage(upright(img, jpegOrientation(data)), height, width), nil
}

// FromImage resizes an already decoded image. Alpha is discarded, not
// blended.
func FromImage(img image.Image, height, width int) Tensor {
	return fromImage(upright(img, 1), height, width)
}

func fromImage(img *image.NRGBA, height, width int) Tensor {
	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)

	bounds := resized.Bounds()
	out := Tensor{
		Height: height,
		Width:  width,
		Data:   make([]float32, Channels*width*height),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			i := (y*width + x) * Channels
			out.Data[i] = float32(r) / 65535.0
			out.Data[i+1] = float32(g) / 65535.0
			out.Data[i+2] = float32(b) / 65535.0
		}
	}

	return out
}

// CHW returns the planar channels-first copy of the tensor.
func (t Tensor) CHW() []float32 {
	plane := t.Width * t.Height
	out := make([]float32, Channels*plane)
	for p := 0; p < plane; p++ {
		out[p] = t.Data[p*Channels]
		out[plane+p] = t.Data[p*Channels+1]
		out[2*plane+p] = t.Data[p*Channels+2]
	}
	return out
}
