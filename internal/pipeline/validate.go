package pipeline

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

const maxDimensionSum = 10000
const maxAspectRatio = 20.0

// validateDimensions enforces SPEC_FULL.md 4.8's "Validate dimensions"
// step: width/height must be positive, their sum bounded, and the
// aspect ratio must not be too extreme for Telegram's media pipeline.
func validateDimensions(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &types.ContentRejectError{Reason: "Invalid dimensions for Telegram", Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return &types.ContentRejectError{Reason: "Invalid dimensions for Telegram", Err: err}
	}

	if cfg.Width < 1 || cfg.Height < 1 {
		return &types.ContentRejectError{Reason: "Invalid dimensions for Telegram", Err: fmt.Errorf("non-positive dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if cfg.Width+cfg.Height > maxDimensionSum {
		return &types.ContentRejectError{Reason: "Invalid dimensions for Telegram", Err: fmt.Errorf("dimension sum %d exceeds %d", cfg.Width+cfg.Height, maxDimensionSum)}
	}

	maxDim, minDim := float64(cfg.Width), float64(cfg.Height)
	if minDim > maxDim {
		maxDim, minDim = minDim, maxDim
	}
	if minDim == 0 || maxDim/minDim > maxAspectRatio {
		return &types.ContentRejectError{Reason: "Invalid dimensions for Telegram", Err: fmt.Errorf("aspect ratio %.1f exceeds %.1f", maxDim/minDim, maxAspectRatio)}
	}

	return nil
}
