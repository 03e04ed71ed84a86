package util

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// JPEGQuality matches the 0.9 quality of browser canvas exports.
const JPEGQuality = 90

// EncodeJPEG encodes img at the given quality (1..100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode jpeg: nil image")
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecodeImage decodes JPEG/PNG by magic bytes first, then any registered format.
func DecodeImage(b []byte) (image.Image, error) {
	switch SniffMimeHTTP(b) {
	case "image/jpeg":
		return jpeg.Decode(bytes.NewReader(b))
	case "image/png":
		return png.Decode(bytes.NewReader(b))
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	return img, err
}

// CombineVertical stacks images top to bottom on a white canvas, centred
// horizontally, and re-encodes as JPEG. The result is downscaled when it
// exceeds maxPixels (0 disables the cap).
func CombineVertical(images [][]byte, maxPixels int) ([]byte, error) {
	if len(images) == 0 {
		return nil, errors.New("combine: no images")
	}
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, err := DecodeImage(b)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		r := img.Bounds()
		if r.Dx() > maxW {
			maxW = r.Dx()
		}
		sumH += r.Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, errors.New("combine: empty images")
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	y := 0
	for _, img := range decoded {
		r := img.Bounds()
		x := (maxW - r.Dx()) / 2
		draw.Draw(dst, image.Rect(x, y, x+r.Dx(), y+r.Dy()), img, r.Min, draw.Over)
		y += r.Dy()
	}
	return EncodeJPEG(Downscale(dst, maxPixels), JPEGQuality)
}

// Downscale shrinks img proportionally so that width*height <= maxPixels.
func Downscale(img image.Image, maxPixels int) image.Image {
	r := img.Bounds()
	total := r.Dx() * r.Dy()
	if maxPixels <= 0 || total <= maxPixels {
		return img
	}
	scale := math.Sqrt(float64(maxPixels) / float64(total))
	w := max(1, int(float64(r.Dx())*scale))
	h := max(1, int(float64(r.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, r, draw.Over, nil)
	return dst
}
