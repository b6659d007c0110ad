package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"subgen/internal/domain"
)

const modelDownloadTimeout = 45 * time.Minute

// EnsureModel makes sure the model weights exist under modelsDir,
// downloading them on first use. The download is guarded by a file
// lock so concurrent processes fetch the weights only once, and the
// file is written to a temp path then renamed so a partial download is
// never mistaken for a cached model.
func EnsureModel(ctx context.Context, modelsDir string, model domain.ModelOption, log *slog.Logger) (string, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}

	destPath := filepath.Join(modelsDir, model.FileName)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return destPath, nil
	}

	lock := flock.New(filepath.Join(modelsDir, ".download.lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("acquire model download lock: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	// Another process may have completed the download while we waited.
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return destPath, nil
	}

	log.Info("downloading model weights, first use is slow",
		"model", model.ID,
		"size", model.SizeLabel,
		"url", model.URL,
	)

	dlCtx, cancel := context.WithTimeout(ctx, modelDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, model.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build model request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", model.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download model %s: HTTP %d", model.ID, resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp model file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write model file: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close model file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move model file: %w", err)
	}

	log.Info("model weights cached", "model", model.ID, "bytes", written, "path", destPath)
	return destPath, nil
}
