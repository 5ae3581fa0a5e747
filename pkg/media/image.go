package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // register decoders for normalizeImage
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

const (
	// maxImageWidth is the pixel budget before an attached image is
	// downscaled. Provider payloads embed images as base64, so oversized
	// originals inflate requests well past model input limits.
	maxImageWidth = 1568

	jpegQuality = 85
)

// normalizeImage downscales oversized images, re-encoding as JPEG. Images
// within budget keep their original bytes and MIME type. Formats the image
// package cannot decode (e.g. webp) pass through untouched.
func normalizeImage(name string, data []byte, mime string) (Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{Filename: name, Data: data, MIME: mime}, nil
	}

	if img.Bounds().Dx() <= maxImageWidth {
		return Image{Filename: name, Data: data, MIME: mime}, nil
	}

	scaled := resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Image{}, fmt.Errorf("media: encode resized image %s: %w", name, err)
	}

	return Image{Filename: name, Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// DataURI encodes the image as a base64 data URI, the shape OpenAI-style
// APIs expect for embedded images.
func (i Image) DataURI() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Base64 returns the raw base64 payload without the data URI wrapper, the
// shape Anthropic and Ollama expect.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}
