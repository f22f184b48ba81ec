// Package pipeline implements the per-category posting cycle: select
// pending records, download, validate, hash, dedup, upload, persist
// (SPEC_FULL.md 4.8).
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

const (
	downloadTimeout   = 60 * time.Second
	downloadChunkSize = 8 * 1024
	minFreeDiskBytes  = 100 << 20
)

// downloadRetryDelays is the fixed backoff schedule SPEC_FULL.md 4.8
// names for the download stage: {2s, 4s, 8s}.
var downloadRetryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// downloadItem streams imageURL to a unique file under cacheDir,
// retrying up to 3 times with the fixed delay schedule. Adapted from
// internal/media/downloader.go's MultiWriter(file, hasher) pattern,
// generalized here into an explicit retry loop with a free-disk
// pre-check (SPEC_FULL.md 4.8 step "Download").
func downloadItem(ctx context.Context, client *http.Client, cacheDir, imageURL string) (string, error) {
	if free, err := freeDiskBytes(cacheDir); err == nil && free < minFreeDiskBytes {
		return "", &types.ContentRejectError{Reason: "insufficient disk space", Err: fmt.Errorf("free=%d", free)}
	}

	ext := filepath.Ext(imageURL)
	localPath := filepath.Join(cacheDir, uuid.NewString()+ext)

	var lastErr error
	for attempt := 0; attempt <= len(downloadRetryDelays); attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(downloadRetryDelays[attempt-1])
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		if err := streamToFile(ctx, client, imageURL, localPath); err != nil {
			lastErr = err
			os.Remove(localPath)
			continue
		}
		return localPath, nil
	}

	return "", fmt.Errorf("download failed after retries: %w", lastErr)
}

func streamToFile(ctx context.Context, client *http.Client, imageURL, localPath string) error {
	reqCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", imageURL, resp.StatusCode)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(f, resp.Body, buf); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// hashFile computes the SHA-256 of a local file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &types.ContentRejectError{Reason: "Hashing failed", Err: err}
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", &types.ContentRejectError{Reason: "Hashing failed", Err: err}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func freeDiskBytes(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
