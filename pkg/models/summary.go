package models

// RunSummary is printed with --json once a run ends.
type RunSummary struct {
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Media      string   `json:"media"`
	Windows    int      `json:"windows"`
	Found      int      `json:"found"`
	Downloaded int      `json:"downloaded"`
	SkippedFTP int      `json:"skippedFtp"`
	Bytes      int64    `json:"bytes"`
	Files      []string `json:"files"`
	Error      string   `json:"error,omitempty"`
}
