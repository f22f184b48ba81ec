package pipeline

import (
	"bytes"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

const (
	thumbnailTriggerBytes = int64(9.0 * 1 << 20)
	thumbnailMaxSide      = 320
	thumbnailBudgetBytes  = 150 * 1024
	thumbnailRetryBudget  = 100 * 1024
	thumbnailMaxBytes     = 1 << 20
	startQuality          = 85
	minQuality            = 20
	qualityStep           = 10
)

// maybeThumbnail implements SPEC_FULL.md 4.8's conditional thumbnail
// step: only files over 9.0 MiB get one, produced by converting to
// sRGB, fitting within 320x320, and progressively reducing JPEG
// quality until the size budget is met or quality bottoms out at 20.
// A 100 KiB retry budget applies if the 150 KiB result is still over
// 1.0 MiB. Failure here is non-fatal — the caller proceeds without a
// thumbnail.
func maybeThumbnail(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= thumbnailTriggerBytes {
		return nil, false
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, false
	}
	fitted := imaging.Fit(img, thumbnailMaxSide, thumbnailMaxSide, imaging.Lanczos)

	thumb, _ := encodeWithinBudget(fitted, thumbnailBudgetBytes)
	if thumb == nil {
		return nil, false
	}
	if len(thumb) > thumbnailMaxBytes {
		var ok bool
		thumb, ok = encodeWithinBudget(fitted, thumbnailRetryBudget)
		if !ok {
			return nil, false
		}
	}

	return thumb, true
}

// encodeWithinBudget steps JPEG quality down from 85 by 10 until the
// encoded size fits budget or quality reaches 20, returning the best
// (smallest) attempt if the budget is never met.
func encodeWithinBudget(img image.Image, budget int) ([]byte, bool) {
	var best []byte

	for quality := startQuality; quality >= minQuality; quality -= qualityStep {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, false
		}
		if best == nil || buf.Len() < len(best) {
			best = buf.Bytes()
		}
		if buf.Len() <= budget {
			return buf.Bytes(), true
		}
	}

	if best == nil {
		return nil, false
	}
	return best, len(best) <= budget
}
