package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinishWritesTextfile(t *testing.T) {
	r := New("jpg", "0")
	r.Found.Add(4)
	r.Downloaded.Add(3)
	r.SkippedFTP.Inc()

	path := filepath.Join(t.TempDir(), "amcam.prom")
	require.NoError(t, r.Finish(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `amcam_files_found_total{channel="0",media="jpg"} 4`)
	assert.Contains(t, out, `amcam_files_downloaded_total{channel="0",media="jpg"} 3`)
	assert.Contains(t, out, `amcam_last_run_success{channel="0",media="jpg"} 1`)
}

func TestFinishRecordsFailure(t *testing.T) {
	r := New("mp4", "1")
	require.NoError(t, r.Finish("", errors.New("boom")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Success))
	assert.Greater(t, testutil.ToFloat64(r.Finished), 0.0)
}
