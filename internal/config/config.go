package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"amcam/internal/client"
	"amcam/internal/download"
	"amcam/pkg/models"
)

// Viper keys. They double as long flag names and, upper-cased with an
// AMCAM_ prefix, as environment variables.
const (
	KeyAddr        = "addr"
	KeyChannel     = "channel"
	KeyDebug       = "debug"
	KeyEnd         = "end"
	KeyFile        = "file"
	KeyMedia       = "media"
	KeyNumber      = "number"
	KeyPassword    = "password"
	KeyStart       = "start"
	KeyUser        = "user"
	KeyAuth        = "auth"
	KeyTimeout     = "timeout"
	KeyRetries     = "retries"
	KeyOutputDir   = "output-dir"
	KeyMetricsFile = "metrics-file"
	KeyJSON        = "json"
)

// Defaults carried over from the original tool.
const (
	DefaultAddr     = "192.168.0.100:80"
	DefaultMedia    = "jpg"
	DefaultUser     = "admin"
	DefaultPassword = "123456"
	DefaultNumber   = 100
)

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			// Search config in home directory with name ".amcam" (without extension).
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".amcam")
		}
	}

	viper.SetEnvPrefix("AMCAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is normal; flags and env cover everything.
	_ = viper.ReadInConfig()
}

// Config is the validated, immutable input of one run.
type Config struct {
	Addr        string
	Channel     int
	Debug       bool
	Start       time.Time
	End         time.Time
	File        string // accepted for compatibility, not used
	Media       string
	Number      int
	User        string
	Password    string
	Auth        string
	Timeout     time.Duration
	Retries     int
	OutputDir   string
	MetricsFile string
	JSON        bool
}

// UsageError is a problem with the command line. Code is the process exit
// status to use.
type UsageError struct {
	Code int
	Msg  string
}

func (e *UsageError) Error() string { return e.Msg }

// Load builds a Config from v, which is normally viper.GetViper().
func Load(v *viper.Viper) (Config, error) {
	rawStart := strings.TrimSpace(v.GetString(KeyStart))
	if rawStart == "" {
		return Config{}, &UsageError{Code: -1, Msg: "a start time is required"}
	}
	rawEnd := strings.TrimSpace(v.GetString(KeyEnd))
	if rawEnd == "" && len(rawStart) >= 10 {
		rawEnd = rawStart[:10]
	}

	start, err := NormalizeTime(rawStart, "00:00:00")
	if err != nil {
		return Config{}, &UsageError{Code: -1, Msg: fmt.Sprintf("start time: %v", err)}
	}
	end, err := NormalizeTime(rawEnd, "23:59:59")
	if err != nil {
		return Config{}, &UsageError{Code: -1, Msg: fmt.Sprintf("end time: %v", err)}
	}

	cfg := Config{
		Addr:        v.GetString(KeyAddr),
		Channel:     v.GetInt(KeyChannel),
		Debug:       v.GetBool(KeyDebug),
		Start:       start,
		End:         end,
		File:        v.GetString(KeyFile),
		Media:       strings.TrimPrefix(v.GetString(KeyMedia), "."),
		Number:      v.GetInt(KeyNumber),
		User:        v.GetString(KeyUser),
		Password:    v.GetString(KeyPassword),
		Auth:        strings.ToLower(v.GetString(KeyAuth)),
		Timeout:     v.GetDuration(KeyTimeout),
		Retries:     v.GetInt(KeyRetries),
		OutputDir:   v.GetString(KeyOutputDir),
		MetricsFile: v.GetString(KeyMetricsFile),
		JSON:        v.GetBool(KeyJSON),
	}
	if cfg.Auth == "" {
		cfg.Auth = client.AuthDigest
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = client.DefaultTimeout
	}
	if !v.IsSet(KeyRetries) {
		cfg.Retries = download.DefaultAttempts
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Addr == "":
		return &UsageError{Code: 2, Msg: "camera address is empty"}
	case c.Media == "":
		return &UsageError{Code: 2, Msg: "media type is empty"}
	case c.Number <= 0:
		return &UsageError{Code: 2, Msg: fmt.Sprintf("number of files must be positive, got %d", c.Number)}
	case c.Retries < 1:
		return &UsageError{Code: 2, Msg: fmt.Sprintf("retries must be at least 1, got %d", c.Retries)}
	case c.Auth != client.AuthDigest && c.Auth != client.AuthBasic:
		return &UsageError{Code: 2, Msg: fmt.Sprintf("unknown auth scheme %q (want digest or basic)", c.Auth)}
	}
	return nil
}

// NormalizeTime accepts "YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS" with any
// single-character separators and returns the camera time it denotes. A
// date without a clock part gets clock appended.
func NormalizeTime(s, clock string) (time.Time, error) {
	if len(s) < 19 {
		s = s + " " + clock
	}
	if len(s) < 19 {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD HH:MM:SS time", s)
	}
	s = s[0:10] + " " + s[11:13] + ":" + s[14:16] + ":" + s[17:19]
	t, err := models.ParseCameraTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD HH:MM:SS time", s)
	}
	return t, nil
}
