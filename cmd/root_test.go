package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amcam/internal/camtest"
	"amcam/internal/config"
	"amcam/pkg/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, addr, media, start, end string, number int) config.Config {
	t.Helper()
	s, err := config.NormalizeTime(start, "00:00:00")
	require.NoError(t, err)
	e, err := config.NormalizeTime(end, "23:59:59")
	require.NoError(t, err)
	return config.Config{
		Addr:      addr,
		Media:     media,
		Start:     s,
		End:       e,
		Number:    number,
		User:      "admin",
		Password:  "pw",
		Auth:      "digest",
		Timeout:   5 * time.Second,
		Retries:   3,
		OutputDir: t.TempDir(),
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func twoClips() *camtest.Camera {
	return camtest.New(
		camtest.Record("mp4", "2020-10-10 12:30:00", "2020-10-10 12:35:00"),
		camtest.Record("mp4", "2020-10-10 13:00:00", "2020-10-10 13:00:05"),
		camtest.Record("jpg", "2020-10-10 13:00:01", "2020-10-10 13:00:01"),
		camtest.Record("mp4", "2020-10-11 08:00:00", "2020-10-11 08:05:00"),
	)
}

func TestRunDownloadsRange(t *testing.T) {
	cam := twoClips()
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10 12:00:00", "2020-10-10 23:59:59", 2)
	err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode(err))

	assert.Equal(t, []string{"2020-10-10 12.30.00.mp4", "2020-10-10 13.00.00.mp4"}, dirNames(t, cfg.OutputDir))

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "2020-10-10 13.00.00.mp4"))
	require.NoError(t, err)
	assert.Equal(t, camtest.Content("/mnt/sd/2020-10-10/001/mp4/13/00/00[M][0@0][0].mp4"), data)

	// full first page, so a second window starts one second after the last clip
	require.Len(t, cam.Conditions, 2)
	assert.Equal(t, "2020-10-10 13:00:06", cam.Conditions[1].Get("condition.StartTime"))
	assert.Equal(t, "2020-10-10 23:59:59", cam.Conditions[1].Get("condition.EndTime"))
	assert.Empty(t, cam.OpenObjects())
	assert.Len(t, cam.Closed, 2)
	assert.Zero(t, cam.NoCookie)
}

func TestRerunFromAdvancedStartFetchesNothingNew(t *testing.T) {
	cam := twoClips()
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10 13:00:06", "2020-10-10 23:59:59", 2)
	require.NoError(t, runSearch(context.Background(), cfg, io.Discard, quietLogger()))

	assert.Empty(t, cam.Loads)
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestRunRetriesDroppedDownloads(t *testing.T) {
	cam := twoClips()
	cam.FailLoads = 2
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10", "2020-10-10", 100)
	require.NoError(t, runSearch(context.Background(), cfg, io.Discard, quietLogger()))

	assert.Len(t, cam.Loads, 4)
	assert.Equal(t, []string{"2020-10-10 12.30.00.mp4", "2020-10-10 13.00.00.mp4"}, dirNames(t, cfg.OutputDir))
}

func TestRunAbortsAfterThreeDroppedDownloads(t *testing.T) {
	cam := twoClips()
	cam.FailLoads = 3
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10", "2020-10-10", 100)
	err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
	require.Error(t, err)

	assert.Equal(t, -1, exitCode(err))
	assert.Len(t, cam.Loads, 3)
	assert.Empty(t, dirNames(t, cfg.OutputDir))
	assert.Empty(t, cam.OpenObjects())
}

func TestRunCameraUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	cfg := testConfig(t, addr, "mp4", "2020-10-10", "2020-10-10", 100)
	err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
	require.Error(t, err)

	assert.Equal(t, -1, exitCode(err))
	assert.Empty(t, dirNames(t, cfg.OutputDir))
}

func TestRunFactoryRefused(t *testing.T) {
	cam := twoClips()
	cam.FactoryStatus = http.StatusServiceUnavailable
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10", "2020-10-10", 100)
	err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
	assert.Equal(t, http.StatusServiceUnavailable, exitCode(err))
}

func TestRunFindFileRejected(t *testing.T) {
	cam := twoClips()
	cam.FindFileBody = "Error\r\n"
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10", "2020-10-10", 100)
	err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
	assert.Equal(t, -1, exitCode(err))
	assert.Empty(t, cam.OpenObjects())
}

func TestRunSkipsFTPRecords(t *testing.T) {
	ftp := camtest.Record("jpg", "2020-10-10 12:00:00", "2020-10-10 12:00:00")
	ftp.FilePath = "ftp://192.168.0.5/cam/2020-10-10/12.00.00.jpg"
	cam := camtest.New(ftp, camtest.Record("jpg", "2020-10-10 12:00:05", "2020-10-10 12:00:05"))
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "jpg", "2020-10-10", "2020-10-10", 100)
	cfg.JSON = true
	var out bytes.Buffer
	require.NoError(t, runSearch(context.Background(), cfg, &out, quietLogger()))

	assert.Equal(t, []string{"2020-10-10 12.00.05.jpg"}, dirNames(t, cfg.OutputDir))

	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.SkippedFTP)
	assert.Equal(t, []string{"2020-10-10 12.00.05.jpg"}, summary.Files)
	assert.Empty(t, summary.Error)
}

func TestRunWritesMetricsFile(t *testing.T) {
	cam := twoClips()
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10", "2020-10-10", 100)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "amcam.prom")
	require.NoError(t, runSearch(context.Background(), cfg, io.Discard, quietLogger()))

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `amcam_files_downloaded_total{channel="0",media="mp4"} 2`)
}

func TestRunWithDigestAuth(t *testing.T) {
	cam := twoClips()
	cam.Username = "admin"
	cam.Password = "pw"
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10 12:00:00", "2020-10-10 23:59:59", 2)
	require.NoError(t, runSearch(context.Background(), cfg, io.Discard, quietLogger()))

	assert.Equal(t, []string{"2020-10-10 12.30.00.mp4", "2020-10-10 13.00.00.mp4"}, dirNames(t, cfg.OutputDir))
	assert.Zero(t, cam.BadDigest)
	assert.Equal(t, len(cam.DigestURIs), cam.Challenges)
	assert.Zero(t, cam.NoCookie)

	var findURI string
	for _, uri := range cam.DigestURIs {
		if strings.Contains(uri, "action=findFile") {
			findURI = uri
			break
		}
	}
	assert.Equal(t, "/cgi-bin/mediaFileFind.cgi?action=findFile&object=1001&condition.Channel=0"+
		"&condition.StartTime=2020-10-10%2012:00:00&condition.EndTime=2020-10-10%2023:59:59&condition.Types[0]=mp4", findURI)
	assert.Contains(t, cam.DigestURIs, "/cgi-bin/RPC_Loadfile/mnt/sd/2020-10-10/001/mp4/12/30/00[M][0@0][0].mp4")
}

func TestRunDigestWrongPassword(t *testing.T) {
	cam := twoClips()
	cam.Username = "admin"
	cam.Password = "secret"
	srv := cam.Start()
	defer srv.Close()

	cfg := testConfig(t, srv.URL, "mp4", "2020-10-10", "2020-10-10", 100)
	err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
	assert.Equal(t, http.StatusForbidden, exitCode(err))
	assert.Equal(t, 1, cam.BadDigest)
	assert.Zero(t, cam.Created)
}

func TestRunEmptyRangeExitsCleanly(t *testing.T) {
	cam := twoClips()
	srv := cam.Start()
	defer srv.Close()

	for _, end := range []string{"2020-10-10 23:59:59", "2020-10-09 08:00:00"} {
		cfg := testConfig(t, srv.URL, "mp4", "2020-10-10 23:59:59", end, 100)
		err := runSearch(context.Background(), cfg, io.Discard, quietLogger())
		assert.Equal(t, 0, exitCode(err), end)
		assert.Empty(t, dirNames(t, cfg.OutputDir), end)
	}
	assert.Zero(t, cam.Created)
	assert.Empty(t, cam.Conditions)
}
