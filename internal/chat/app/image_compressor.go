package app

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // decoder
	"image/jpeg"
	_ "image/png" // decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decoder
)

// CompressOptions output is JPEG fitted inside MaxWidth x MaxHeight
type CompressOptions struct {
	Quality   int
	MaxWidth  int
	MaxHeight int
}

// DefaultCompressOptions profile picture settings
var DefaultCompressOptions = CompressOptions{Quality: 70, MaxWidth: 500, MaxHeight: 500}

// CompressImage decode png / jpeg / gif / webp, shrink to fit and encode as JPEG
func CompressImage(data []byte, opts CompressOptions) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG 沒有透明度, 先鋪白底
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fitSize keep aspect ratio, never upscale
func fitSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
