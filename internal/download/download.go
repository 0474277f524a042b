package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"amcam/internal/client"
	"amcam/pkg/models"
)

// DefaultAttempts is how many times one file is requested before the run is
// abandoned.
const DefaultAttempts = 3

// FileNameFormat renders a record's StartTime as a file name stem. Colons
// are not portable in file names, so the clock part uses periods.
const FileNameFormat = "2006-01-02 15.04.05"

// ErrRetriesExhausted is wrapped by the error returned once every attempt
// to fetch a file has failed.
var ErrRetriesExhausted = errors.New("retry count exceeded")

// Fetcher retrieves a remote file. *client.AmcrestClient satisfies it.
type Fetcher interface {
	LoadFile(ctx context.Context, remotePath string) ([]byte, error)
}

type Config struct {
	Dir      string // destination directory, "" for the working directory
	Media    string // extension appended to every file name
	Attempts int
	Logger   *slog.Logger
}

type Downloader struct {
	fetcher Fetcher
	cfg     Config
	log     *slog.Logger
}

// Result describes one persisted file.
type Result struct {
	Name     string
	Path     string
	Bytes    int64
	Attempts int
}

func New(f Fetcher, cfg Config) *Downloader {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Downloader{fetcher: f, cfg: cfg, log: cfg.Logger}
}

// FileName derives "YYYY-MM-DD HH.MM.SS.<media>" from a camera StartTime.
// Names sort lexically in chronological order.
func FileName(startTime, media string) (string, error) {
	t, err := models.ParseCameraTime(startTime)
	if err != nil {
		return "", fmt.Errorf("start time %q: %w", startTime, err)
	}
	return t.Format(FileNameFormat) + "." + strings.TrimPrefix(media, "."), nil
}

// Download fetches rec and stores it under its StartTime-derived name.
func (d *Downloader) Download(ctx context.Context, rec models.MediaRecord) (Result, error) {
	name, err := FileName(rec.StartTime, d.cfg.Media)
	if err != nil {
		return Result{}, err
	}

	data, attempts, err := d.Fetch(ctx, rec.FilePath)
	if err != nil {
		return Result{Name: name, Attempts: attempts}, err
	}

	path, err := d.Persist(data, name)
	if err != nil {
		return Result{Name: name, Attempts: attempts}, err
	}
	return Result{Name: name, Path: path, Bytes: int64(len(data)), Attempts: attempts}, nil
}

// Fetch requests remotePath up to the configured number of attempts.
// Only connectivity failures are retried; a status or protocol error ends
// the attempt loop immediately.
func (d *Downloader) Fetch(ctx context.Context, remotePath string) ([]byte, int, error) {
	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		data, err := d.fetcher.LoadFile(ctx, remotePath)
		if err == nil {
			return data, nil
		}
		if !client.IsConnectivity(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		d.log.Warn("download failed", "path", remotePath, "attempt", attempts, "error", err)
		return nil, err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(d.cfg.Attempts-1)),
		ctx,
	)
	data, err := backoff.RetryWithData(op, policy)
	if err != nil {
		if client.IsConnectivity(err) && attempts >= d.cfg.Attempts {
			d.log.Error("retry count exceeded, aborting", "path", remotePath, "attempts", attempts)
			return nil, attempts, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, remotePath, attempts, err)
		}
		return nil, attempts, err
	}
	return data, attempts, nil
}

// Persist writes data under a temporary name in the destination directory
// and renames it to name, so a failed write never leaves a file under its
// final name. An existing file with that name is replaced.
func (d *Downloader) Persist(data []byte, name string) (string, error) {
	dir := d.cfg.Dir
	if dir == "" {
		dir = "."
	}
	final := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".part")

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename to %s: %w", name, err)
	}
	return final, nil
}
