package imagesink

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

func threeStripImage() *dsp.StripedImage {
	var img dsp.StripedImage
	img.SetParams(3, 2, dsp.IntColor{B: 10, G: 20, R: 30, A: 255}, false)
	img.PushStrip([]dsp.IntColor{{B: 1, G: 2, R: 3, A: 255}, {B: 4, G: 5, R: 6, A: 255}})
	img.PushStrip([]dsp.IntColor{{B: 7, G: 8, R: 9, A: 255}, {B: 10, G: 11, R: 12, A: 255}})
	img.PushStrip([]dsp.IntColor{{B: 13, G: 14, R: 15, A: 255}, {B: 16, G: 17, R: 18, A: 255}})
	return &img
}

func TestEncodeHeaderShape(t *testing.T) {
	img := threeStripImage()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img))

	b := buf.Bytes()
	require.GreaterOrEqual(t, len(b), pixelOffset)
	assert.Equal(t, "BM", string(b[0:2]))

	fileSize := binary.LittleEndian.Uint32(b[2:6])
	assert.Equal(t, uint32(len(b)), fileSize)

	pixOffset := binary.LittleEndian.Uint32(b[10:14])
	assert.Equal(t, uint32(pixelOffset), pixOffset)

	dibSize := binary.LittleEndian.Uint32(b[14:18])
	assert.Equal(t, uint32(dibHeaderSize), dibSize)

	width := int32(binary.LittleEndian.Uint32(b[18:22]))
	height := int32(binary.LittleEndian.Uint32(b[22:26]))
	assert.Equal(t, int32(3), width)
	assert.Equal(t, int32(2), height)

	bitCount := binary.LittleEndian.Uint16(b[28:30])
	assert.Equal(t, uint16(32), bitCount)

	compression := binary.LittleEndian.Uint32(b[30:34])
	assert.Equal(t, uint32(3), compression, "must be BI_BITFIELDS")

	redMask := binary.LittleEndian.Uint32(b[54:58])
	assert.Equal(t, uint32(0x00FF0000), redMask)
}

func TestEncodePixelBottomUpOrder(t *testing.T) {
	img := threeStripImage()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img))
	b := buf.Bytes()

	pixels := b[pixelOffset:]
	// Row 0 of the BMP (first scanline in the file) is the *bottom* row
	// of the image, i.e. row index 1 of each column (height=2).
	firstPixel := pixels[0:4]
	assert.Equal(t, byte(4), firstPixel[0], "blue channel of column 0, row 1")
	assert.Equal(t, byte(5), firstPixel[1], "green channel")
	assert.Equal(t, byte(6), firstPixel[2], "red channel")
}

func TestWriteIsAtomicAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bmp")

	require.NoError(t, Write(path, threeStripImage()))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful Write")
}

func TestEncodeRejectsEmptyImage(t *testing.T) {
	var img dsp.StripedImage
	img.SetParams(4, 4, dsp.IntColor{}, true)
	var buf bytes.Buffer
	err := Encode(&buf, &img)
	assert.Error(t, err)
}

func TestEncodePixelsMatchesEncodeOnSameBuffer(t *testing.T) {
	img := threeStripImage()
	var viaImage, viaPixels bytes.Buffer
	require.NoError(t, Encode(&viaImage, img))
	require.NoError(t, EncodePixels(&viaPixels, img.Width(), img.Height(), img.Pixels()))
	assert.Equal(t, viaImage.Bytes(), viaPixels.Bytes())
}

func TestWritePixelsIsAtomicAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bmp")
	img := threeStripImage()

	require.NoError(t, WritePixels(path, img.Width(), img.Height(), img.Pixels()))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful WritePixels")
}
