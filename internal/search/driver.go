package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"amcam/internal/client"
	"amcam/internal/download"
	"amcam/internal/metrics"
	"amcam/pkg/models"
)

// Downloader stores one record locally.
type Downloader interface {
	Download(ctx context.Context, rec models.MediaRecord) (download.Result, error)
}

// Request is the immutable description of a run.
type Request struct {
	Channel  int
	Media    string
	Start    time.Time
	End      time.Time
	MaxFiles int
}

// State is the mutable bookkeeping of a run. Found only ever grows.
type State struct {
	WindowStart time.Time
	Windows     int
	Found       int
	Downloaded  int
	SkippedFTP  int
	Bytes       int64
	Files       []string
}

// Driver walks [Start, End] one search window at a time. The camera only
// accepts whole ranges, so progress is made by re-querying from one second
// past the last record returned.
type Driver struct {
	cam     Camera
	dl      Downloader
	metrics *metrics.Run
	log     *slog.Logger
	state   State
}

func NewDriver(cam Camera, dl Downloader, m *metrics.Run, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{cam: cam, dl: dl, metrics: m, log: log}
}

func (d *Driver) State() State { return d.state }

// Run searches and downloads until the range is exhausted. It returns the
// first fatal error; the open factory object is closed in every case.
func (d *Driver) Run(ctx context.Context, req Request) error {
	if req.MaxFiles <= 0 {
		return fmt.Errorf("max files must be positive, got %d", req.MaxFiles)
	}

	start := req.Start
	for start.Before(req.End) {
		next, done, err := d.window(ctx, req, start)
		if err != nil {
			return err
		}
		if done {
			break
		}
		d.log.Info("new start time", "start", models.FormatCameraTime(next))
		start = next
	}

	d.log.Info("search is over", "found", d.state.Found, "downloaded", d.state.Downloaded)
	return nil
}

// window runs one factory object from creation to close and returns where
// the next window starts.
func (d *Driver) window(ctx context.Context, req Request, start time.Time) (next time.Time, done bool, err error) {
	d.state.WindowStart = start

	sess, err := Open(ctx, d.cam, d.log)
	if err != nil {
		return time.Time{}, false, err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	d.state.Windows++
	if d.metrics != nil {
		d.metrics.Windows.Inc()
	}

	cond := client.FindCondition{Channel: req.Channel, Start: start, End: req.End, Media: req.Media}
	if err := sess.Query(ctx, cond); err != nil {
		return time.Time{}, false, err
	}

	page, err := sess.NextPage(ctx, req.MaxFiles)
	if err != nil {
		return time.Time{}, false, err
	}

	d.state.Found += page.Found
	if d.metrics != nil {
		d.metrics.Found.Add(float64(page.Found))
	}
	if page.Found == 0 {
		return time.Time{}, true, nil
	}

	received := 0
	for _, rec := range page.Records {
		if rec.IsFTP() {
			d.log.Info("file is in ftp directory", "path", rec.FilePath)
			d.state.SkippedFTP++
			if d.metrics != nil {
				d.metrics.SkippedFTP.Inc()
			}
			continue
		}

		res, err := d.dl.Download(ctx, rec)
		if d.metrics != nil && res.Attempts > 1 {
			d.metrics.Retries.Add(float64(res.Attempts - 1))
		}
		if err != nil {
			return time.Time{}, false, err
		}

		received++
		d.state.Downloaded++
		d.state.Bytes += res.Bytes
		d.state.Files = append(d.state.Files, res.Name)
		if d.metrics != nil {
			d.metrics.Downloaded.Inc()
			d.metrics.Bytes.Add(float64(res.Bytes))
		}
		d.log.Info(fmt.Sprintf("received (%d/%d) file %s", received, page.Found, res.Name))
	}

	if len(page.Records) < req.MaxFiles {
		return time.Time{}, true, nil
	}

	last := page.Records[len(page.Records)-1]
	end, err := last.End()
	if err != nil {
		return time.Time{}, false, &client.ProtocolError{
			Op:  client.OpFindNextFile,
			Err: fmt.Errorf("items[%d].EndTime: %w", last.Index, err),
		}
	}

	next = end.Add(time.Second)
	if !next.After(start) {
		return time.Time{}, false, &client.ProtocolError{
			Op:  client.OpFindNextFile,
			Err: fmt.Errorf("search did not advance past %s", models.FormatCameraTime(start)),
		}
	}
	if !next.Before(req.End) {
		return time.Time{}, true, nil
	}
	return next, false, nil
}
