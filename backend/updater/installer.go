package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	http "github.com/bogdanfinn/fhttp"

	"revix/backend"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// DownloadAndInstall downloads info's package, verifies it and swaps it in
// for the current executable. The running process keeps its old image until
// it is restarted.
func (c *Client) DownloadAndInstall(ctx context.Context, info backend.UpdateInfo, onProgress func(backend.UpdateProgress), onReady func()) error {
	c.log.Info("starting update", "targetVersion", info.Version)

	tempPath, err := c.downloadPackage(ctx, info, onProgress)
	if err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}
	defer os.Remove(tempPath)

	if info.Checksum != "" {
		if err := verifyChecksum(tempPath, info.Checksum); err != nil {
			return fmt.Errorf("checksum verification failed: %w", err)
		}
	} else {
		c.log.Warn("update has no checksum, skipping verification", "version", info.Version)
	}

	if onReady != nil {
		onReady()
	}

	binaryPath, backupPath, err := c.paths()
	if err != nil {
		return err
	}

	if err := copyFile(binaryPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup current binary: %w", err)
	}

	if err := replaceBinary(tempPath, binaryPath); err != nil {
		if rbErr := copyFile(backupPath, binaryPath); rbErr != nil {
			c.log.Error("rollback also failed after replace error", "replaceError", err, "rollbackError", rbErr)
			return fmt.Errorf("failed to replace binary: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("failed to replace binary (rolled back): %w", err)
	}

	c.log.Info("update installed", "version", info.Version, "path", binaryPath)
	return nil
}

func (c *Client) paths() (binary, backup string, err error) {
	binary = c.cfg.BinaryPath
	if binary == "" {
		binary, err = os.Executable()
		if err != nil {
			return "", "", fmt.Errorf("failed to get executable path: %w", err)
		}
		binary, err = filepath.EvalSymlinks(binary)
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}
	}
	backup = c.cfg.BackupPath
	if backup == "" {
		backup = binary + ".backup"
	}
	return binary, backup, nil
}

// progressWriter reports every chunk written through it
type progressWriter struct {
	total      int64
	downloaded int64
	report     func(backend.UpdateProgress)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.downloaded += int64(n)
	if w.report != nil {
		w.report(backend.UpdateProgress{
			Downloaded: w.downloaded,
			Total:      w.total,
			Chunk:      int64(n),
		})
	}
	return n, nil
}

func (c *Client) downloadPackage(ctx context.Context, info backend.UpdateInfo, onProgress func(backend.UpdateProgress)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header = http.Header{
		"accept":     {"application/octet-stream"},
		"user-agent": {c.userAgent},
		http.HeaderOrderKey: {
			"accept",
			"user-agent",
		},
	}

	resp, err := c.download.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("download cancelled: %w", ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("package download failed with status %d", resp.StatusCode)
	}

	tempFile, err := os.CreateTemp("", "revix-update-*")
	if err != nil {
		return "", err
	}
	defer tempFile.Close()

	pw := &progressWriter{total: resp.ContentLength, report: onProgress}
	if pw.total < 0 {
		pw.total = 0
	}
	if _, err := io.Copy(io.MultiWriter(tempFile, pw), resp.Body); err != nil {
		os.Remove(tempFile.Name())
		return "", err
	}
	return tempFile.Name(), nil
}

// verifyChecksum checks the SHA256 of path. expected may carry a "sha256:" prefix.
func verifyChecksum(path, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	expected = strings.TrimPrefix(expected, "sha256:")

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return err
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	os.Remove(dst)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// replaceBinary swaps newPath in at binaryPath. Windows will not overwrite a
// running executable, so the old one is renamed aside first.
func replaceBinary(newPath, binaryPath string) error {
	if runtime.GOOS == "windows" {
		oldPath := binaryPath + ".old"
		os.Remove(oldPath)
		if err := os.Rename(binaryPath, oldPath); err != nil {
			return err
		}
	}

	src, err := os.Open(newPath)
	if err != nil {
		return err
	}
	defer src.Close()

	// Unlink first so a running executable on unix keeps its inode.
	if runtime.GOOS != "windows" {
		os.Remove(binaryPath)
	}
	dst, err := os.OpenFile(binaryPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		return os.Chmod(binaryPath, 0755)
	}
	return nil
}
