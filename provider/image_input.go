package provider

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

// ParseDataURL splits a data URL into its mime type and decoded raw bytes:
// data:<mime>;base64,<payload>
func ParseDataURL(dataURL string) (mimeType string, raw []byte, err error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", nil, fmt.Errorf("not a data URL: missing \"data:\" prefix")
	}

	rest := dataURL[len("data:"):]
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return "", nil, fmt.Errorf("invalid data URL: missing comma separator")
	}

	meta := rest[:commaIdx]
	payload := rest[commaIdx+1:]

	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("invalid data URL: missing \";base64\" marker")
	}

	mimeType = meta[:len(meta)-len(";base64")]
	if mimeType == "" {
		return "", nil, fmt.Errorf("invalid data URL: empty mime type")
	}

	raw, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URL: base64 decode: %w", err)
	}
	return mimeType, raw, nil
}

// BuildDataURL constructs a data URL from a mime type and raw bytes.
func BuildDataURL(mimeType string, raw []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func decodeImage(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// resizeImage scales img so its longest edge is at most maxLongEdgePx,
// preserving aspect ratio.
func resizeImage(img image.Image, maxLongEdgePx int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	if longEdge <= maxLongEdgePx {
		return img
	}

	scale := float64(maxLongEdgePx) / float64(longEdge)
	newW, newH := int(float64(w)*scale), int(float64(h)*scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func encodeAsJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// PrepareImageDataURLForLimits returns a (possibly resized/recompressed)
// data URL satisfying maxBytes and maxLongEdgePx. The OpenAI and Anthropic
// adapters share this so an oversized attachment degrades the same way
// (resize, then step down JPEG quality) on both; the Ollama adapter does not
// call it.
func PrepareImageDataURLForLimits(dataURL string, maxBytes int, maxLongEdgePx int) (newDataURL string, mime string, data []byte, err error) {
	mime, raw, err := ParseDataURL(dataURL)
	if err != nil {
		return "", "", nil, err
	}

	if len(raw) <= maxBytes && maxLongEdgePx <= 0 {
		return dataURL, mime, raw, nil
	}

	img, _, decodeErr := decodeImage(raw)
	if decodeErr != nil {
		if len(raw) <= maxBytes {
			return dataURL, mime, raw, nil
		}
		return "", "", nil, fmt.Errorf("image exceeds %d bytes and cannot be decoded for resizing: %w", maxBytes, decodeErr)
	}

	bounds := img.Bounds()
	longEdge := bounds.Dx()
	if bounds.Dy() > longEdge {
		longEdge = bounds.Dy()
	}

	needsResize := maxLongEdgePx > 0 && longEdge > maxLongEdgePx
	needsRecompress := len(raw) > maxBytes
	if !needsResize && !needsRecompress {
		return dataURL, mime, raw, nil
	}

	if needsResize {
		img = resizeImage(img, maxLongEdgePx)
	}

	for _, q := range []int{95, 85, 75, 60, 40, 20, 10} {
		encoded, encErr := encodeAsJPEG(img, q)
		if encErr != nil {
			return "", "", nil, encErr
		}
		if len(encoded) <= maxBytes {
			return BuildDataURL("image/jpeg", encoded), "image/jpeg", encoded, nil
		}
	}

	return "", "", nil, fmt.Errorf("image cannot be reduced below %d bytes even at minimum jpeg quality", maxBytes)
}

func init() {
	_ = png.Decode
	_ = gif.Decode
	_ = jpeg.Decode
}
