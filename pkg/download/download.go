package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/kdeps/embedmongo/pkg/logbridge"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/spf13/afero"
)

// WriteCounter tracks the number of bytes written and reports progress.
type WriteCounter struct {
	Total       uint64
	Size        uint64
	DownloadURL string
	Label       string
	Listener    logbridge.ProgressListener

	lastPercent int
}

// Write implements the io.Writer interface and updates the total byte count.
func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Total += uint64(n)
	wc.ReportProgress()
	return n, nil
}

// ReportProgress forwards a percentage when the size is known, and only when
// it changed; otherwise it reports the humanized byte count.
func (wc *WriteCounter) ReportProgress() {
	if wc.Listener == nil {
		return
	}
	if wc.Size == 0 {
		wc.Listener.Info(wc.Label, humanize.Bytes(wc.Total)+" downloaded")
		return
	}
	percent := int(wc.Total * 100 / wc.Size)
	if percent > 100 {
		percent = 100
	}
	if percent != wc.lastPercent {
		wc.lastPercent = percent
		wc.Listener.Progress(wc.Label, percent)
	}
}

// DownloadFile downloads url into filePath. Existing files are kept as-is,
// so filePath doubles as a cache entry.
func DownloadFile(fs afero.Fs, ctx context.Context, client *http.Client, url, filePath string,
	listener logbridge.ProgressListener, logger *logging.Logger,
) error {
	if filePath == "" {
		return errors.New("invalid file path provided")
	}
	if listener == nil {
		listener = logbridge.NopProgressListener{}
	}
	if client == nil {
		client = http.DefaultClient
	}

	if exists, err := afero.Exists(fs, filePath); err == nil && exists {
		logger.Debug("file already cached, skipping download", "file", filePath)
		return nil
	}

	if err := fs.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	tmpFilePath := filePath + ".tmp"
	out, err := fs.Create(tmpFilePath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		_ = fs.Remove(tmpFilePath)
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_ = fs.Remove(tmpFilePath)
		return fmt.Errorf("failed to download file: status code %d", resp.StatusCode)
	}

	label := "Download " + filepath.Base(filePath)
	counter := &WriteCounter{DownloadURL: url, Label: label, Listener: listener, lastPercent: -1}
	if resp.ContentLength > 0 {
		counter.Size = uint64(resp.ContentLength)
	}

	listener.Start(label)
	if _, err = io.Copy(out, io.TeeReader(resp.Body, counter)); err != nil {
		_ = fs.Remove(tmpFilePath)
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err = fs.Rename(tmpFilePath, filePath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	listener.Info(label, humanize.Bytes(counter.Total))
	listener.Done(label)
	logger.Debug("download complete", "url", url, "file", filePath, "size", humanize.Bytes(counter.Total))
	return nil
}
