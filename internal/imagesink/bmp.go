// Package imagesink materialises a dsp.StripedImage snapshot to disk as
// a BMP file, the external sink spec.md §1 names as out of the DSP
// core's scope (only the interface -- "accepts a Vec2D<RGBA8> and a
// path" -- is specified there). The byte layout itself is binding per
// spec.md §6: a 108-byte DIB header (BI_BITFIELDS), 32-bit BGRA, any
// compliant BMP reader must accept it.
package imagesink

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

const (
	fileHeaderSize = 14
	dibHeaderSize  = 108 // BITMAPV4HEADER
	pixelOffset    = fileHeaderSize + dibHeaderSize
	bytesPerPixel  = 4
)

// Encode writes img as a 32-bit BGRA BMP to w. img's pixels are stored
// column-major (one strip per column) with row 0 as the top of the image (dsp.StripedImage's own
// convention, see handler/spectrogram.go); BMP scanlines are bottom-up,
// so rows are emitted in reverse order.
func Encode(w io.Writer, img *dsp.StripedImage) error {
	return EncodePixels(w, img.Width(), img.Height(), img.Pixels())
}

// EncodePixels is Encode's raw form: it writes a pre-rendered pixel
// buffer (column-major, pixels[col*height+row]) instead of reading one
// off a *dsp.StripedImage. WaveForm and Spectrogram both expose an
// Inflated() buffer -- border+fade applied -- that is wider than their
// underlying StripedImage, so the encoder needs to take dimensions
// independently of any single image object.
func EncodePixels(w io.Writer, width, height int, pixels []dsp.IntColor) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("imagesink: cannot encode an empty image (width=%d height=%d)", width, height)
	}

	rowBytes := width * bytesPerPixel
	imageSize := rowBytes * height
	fileSize := pixelOffset + imageSize

	var fileHeader [fileHeaderSize]byte
	fileHeader[0], fileHeader[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(fileHeader[2:6], uint32(fileSize))
	binary.LittleEndian.PutUint32(fileHeader[10:14], uint32(pixelOffset))
	if _, err := w.Write(fileHeader[:]); err != nil {
		return err
	}

	var dib [dibHeaderSize]byte
	binary.LittleEndian.PutUint32(dib[0:4], dibHeaderSize)
	binary.LittleEndian.PutUint32(dib[4:8], uint32(width))
	binary.LittleEndian.PutUint32(dib[8:12], uint32(height))
	binary.LittleEndian.PutUint16(dib[12:14], 1)  // planes
	binary.LittleEndian.PutUint16(dib[14:16], 32) // bit count
	binary.LittleEndian.PutUint32(dib[16:20], 3)  // BI_BITFIELDS
	binary.LittleEndian.PutUint32(dib[20:24], uint32(imageSize))
	binary.LittleEndian.PutUint32(dib[24:28], 2835) // ~72 DPI
	binary.LittleEndian.PutUint32(dib[28:32], 2835)
	// clrUsed, clrImportant stay zero.
	binary.LittleEndian.PutUint32(dib[40:44], 0x00FF0000) // red mask
	binary.LittleEndian.PutUint32(dib[44:48], 0x0000FF00) // green mask
	binary.LittleEndian.PutUint32(dib[48:52], 0x000000FF) // blue mask
	binary.LittleEndian.PutUint32(dib[52:56], 0xFF000000) // alpha mask
	// CSType/endpoints/gamma stay zero (LCS_CALIBRATED_RGB, unused).
	if _, err := w.Write(dib[:]); err != nil {
		return err
	}

	row := make([]byte, rowBytes)
	for y := height - 1; y >= 0; y-- {
		for x := 0; x < width; x++ {
			c := pixels[x*height+y]
			base := x * bytesPerPixel
			row[base+0] = c.B
			row[base+1] = c.G
			row[base+2] = c.R
			row[base+3] = c.A
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
