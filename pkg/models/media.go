package models

import (
	"strings"
	"time"
)

// CameraTimeFormat is the wall-clock layout used by mediaFileFind.cgi for
// both query conditions and result records.
const CameraTimeFormat = "2006-01-02 15:04:05"

// ParseCameraTime reads a camera timestamp. Values carry no zone and are
// kept in UTC so that second arithmetic never crosses a DST boundary.
func ParseCameraTime(s string) (time.Time, error) {
	return time.Parse(CameraTimeFormat, strings.TrimSpace(s))
}

// FormatCameraTime is the inverse of ParseCameraTime.
func FormatCameraTime(t time.Time) string {
	return t.UTC().Format(CameraTimeFormat)
}

// MediaRecord is one items[N] entry of a findNextFile page.
type MediaRecord struct {
	Index     int               `json:"index"`
	Channel   int               `json:"channel"`
	StartTime string            `json:"startTime"`
	EndTime   string            `json:"endTime"`
	FilePath  string            `json:"filePath"`
	Type      string            `json:"type"`
	Length    int64             `json:"length,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"` // fields we do not interpret (Events[0], Summary.*, ...)
}

// IsFTP reports whether the file lives on the FTP tier, which RPC_Loadfile
// cannot serve.
func (r MediaRecord) IsFTP() bool {
	return strings.Contains(r.FilePath, "ftp://")
}

// Start parses StartTime.
func (r MediaRecord) Start() (time.Time, error) {
	return ParseCameraTime(r.StartTime)
}

// End parses EndTime.
func (r MediaRecord) End() (time.Time, error) {
	return ParseCameraTime(r.EndTime)
}

// Page is the decoded body of one findNextFile call.
type Page struct {
	// Found is the value of the found=<n> line. Zero means the whole search
	// has no further results.
	Found   int           `json:"found"`
	Records []MediaRecord `json:"records"`
}
