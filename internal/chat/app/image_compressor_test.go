package app

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressImage(t *testing.T) {
	out, err := CompressImage(encodePNG(t, 1000, 400), DefaultCompressOptions)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestCompressImage_SmallImageKeepsSize(t *testing.T) {
	out, err := CompressImage(encodePNG(t, 40, 30), DefaultCompressOptions)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestCompressImage_InvalidData(t *testing.T) {
	_, err := CompressImage([]byte("not an image"), DefaultCompressOptions)
	assert.Error(t, err)
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{1000, 400, 500, 500, 500, 200},
		{400, 1000, 500, 500, 200, 500},
		{2000, 2000, 500, 500, 500, 500},
		{300, 200, 500, 500, 300, 200},
		{5000, 1, 500, 500, 500, 1},
		{800, 600, 0, 300, 400, 300},
	}
	for _, tt := range tests {
		w, h := fitSize(tt.w, tt.h, tt.maxW, tt.maxH)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}
