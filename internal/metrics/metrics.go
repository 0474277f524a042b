// Package metrics keeps per-run counters and writes them in the
// node_exporter textfile collector format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Run struct {
	Registry *prometheus.Registry

	Found      prometheus.Counter
	Downloaded prometheus.Counter
	SkippedFTP prometheus.Counter
	Bytes      prometheus.Counter
	Windows    prometheus.Counter
	Retries    prometheus.Counter
	Success    prometheus.Gauge
	Finished   prometheus.Gauge
}

func New(media string, channel string) *Run {
	labels := prometheus.Labels{"media": media, "channel": channel}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "amcam",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "amcam",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	r := &Run{
		Registry:   prometheus.NewRegistry(),
		Found:      counter("files_found_total", "Files reported by findNextFile."),
		Downloaded: counter("files_downloaded_total", "Files written to disk."),
		SkippedFTP: counter("files_skipped_ftp_total", "Files on the FTP tier that were not downloaded."),
		Bytes:      counter("download_bytes_total", "Bytes written to disk."),
		Windows:    counter("search_windows_total", "findFile searches issued."),
		Retries:    counter("download_retries_total", "Download attempts beyond the first."),
		Success:    gauge("last_run_success", "1 if the last run finished without error."),
		Finished:   gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
	}
	r.Registry.MustRegister(r.Found, r.Downloaded, r.SkippedFTP, r.Bytes, r.Windows, r.Retries, r.Success, r.Finished)
	return r
}

// Finish records the outcome and, when path is set, writes the registry to it.
func (r *Run) Finish(path string, runErr error) error {
	if runErr == nil {
		r.Success.Set(1)
	} else {
		r.Success.Set(0)
	}
	r.Finished.Set(float64(time.Now().Unix()))

	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.Registry)
}
