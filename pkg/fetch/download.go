package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/httputil"
)

// DownloadOptions configures a single [Client.Download].
type DownloadOptions struct {
	// SHA1 is the expected hex checksum of the payload; empty skips verification.
	SHA1       string
	OnProgress ProgressFunc
}

// Download streams the payload at rawURL to dest and returns its size.
//
// The payload is written to a temporary file next to dest and renamed into
// place only once it is complete and, if requested, its checksum matches. A
// failed or canceled download never leaves a partial file at dest.
func (c *Client) Download(ctx context.Context, rawURL, dest string, opts DownloadOptions) (int64, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "create directory for %s", dest)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return 0, canceled(rawURL, err)
	}
	defer c.sem.Release(1)

	var size int64
	err = httputil.Retry(ctx, c.policy, func() error {
		var body io.ReadCloser
		var total int64
		if u.Scheme == "file" {
			f, err := os.Open(u.Path)
			if os.IsNotExist(err) {
				return qerrors.Wrap(qerrors.ErrCodeNotFound, err, "%s", rawURL)
			}
			if err != nil {
				return qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "open %s", rawURL)
			}
			total = -1
			if info, err := f.Stat(); err == nil {
				total = info.Size()
			}
			body = f
		} else {
			b, n, err := c.get(ctx, u)
			if err != nil {
				return err
			}
			body, total = b, n
		}
		defer body.Close()

		n, err := writeAtomic(dest, &progressReader{r: body, total: total, fn: opts.OnProgress}, opts.SHA1)
		if err != nil {
			if qerrors.GetCode(err) != "" || ctx.Err() != nil {
				return err
			}
			return httputil.Retryable(qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "error downloading %s", rawURL))
		}
		size = n
		return nil
	})
	if err != nil {
		return 0, classify(ctx, rawURL, err)
	}
	c.logger.Debug("downloaded", "url", rawURL, "path", dest, "bytes", size)
	return size, nil
}

// writeAtomic copies r to a temporary file and renames it to dest.
func writeAtomic(dest string, r io.Reader, wantSHA1 string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var h hash.Hash
	w := io.Writer(tmp)
	if wantSHA1 != "" {
		h = sha1.New()
		w = io.MultiWriter(tmp, h)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		return 0, err
	}
	if h != nil {
		if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, wantSHA1) {
			return 0, qerrors.New(qerrors.ErrCodeChecksumMismatch, "%s: sha1 %s, want %s", dest, got, wantSHA1)
		}
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		committed = true
		return 0, err
	}
	committed = true
	return n, nil
}

// FileSHA1 returns the hex SHA-1 of the file at path.
func FileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
