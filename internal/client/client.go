package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Auth schemes understood by New.
const (
	AuthDigest = "digest"
	AuthBasic  = "basic"
)

// DefaultTimeout applies to every request, downloads included.
const DefaultTimeout = 180 * time.Second

type AmcrestClient struct {
	HTTP   *resty.Client
	Config ClientConfig
	log    *slog.Logger
}

type ClientConfig struct {
	Addr     string // host:port, optionally prefixed with a scheme
	Username string
	Password string
	Auth     string // AuthDigest (default) or AuthBasic
	Timeout  time.Duration
	Logger   *slog.Logger
}

// BaseURL returns the camera root URL, defaulting to plain http.
func (cfg ClientConfig) BaseURL() string {
	addr := strings.TrimRight(cfg.Addr, "/")
	if strings.Contains(addr, "://") {
		return addr
	}
	return "http://" + addr
}

func New(cfg ClientConfig) *AmcrestClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// resty.New installs a cookie jar, so session cookies handed out by
	// factory.create follow every later request on this client.
	r := resty.New()
	r.SetBaseURL(cfg.BaseURL())
	r.SetTimeout(cfg.Timeout)
	r.SetLogger(restyLogger{cfg.Logger})

	switch strings.ToLower(cfg.Auth) {
	case AuthBasic:
		r.SetBasicAuth(cfg.Username, cfg.Password)
	default:
		r.SetDigestAuth(cfg.Username, cfg.Password)
	}

	return &AmcrestClient{
		HTTP:   r,
		Config: cfg,
		log:    cfg.Logger,
	}
}

// get issues a GET and converts transport failures and non-2xx answers into
// ConnectivityError and ProtocolError respectively.
func (c *AmcrestClient) get(ctx context.Context, op, path string) (*resty.Response, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return nil, &ConnectivityError{Op: op, Err: err}
	}

	c.logCookies(op, resp)

	if !resp.IsSuccess() {
		return resp, &ProtocolError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return resp, nil
}

func (c *AmcrestClient) logCookies(op string, resp *resty.Response) {
	if !c.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		c.log.Debug("no cookies", "op", op)
		return
	}
	for _, ck := range cookies {
		c.log.Debug("cookie", "op", op, "name", ck.Name, "value", ck.Value)
	}
}

// cgiQuery builds a raw query string. Keys are written verbatim so that
// names like condition.Types[0] reach the camera unescaped; values are
// escaped with %20 for spaces, which is what the CGI expects for timestamps.
func cgiQuery(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(escapeValue(kv[i+1]))
	}
	return b.String()
}

var valueEscaper = strings.NewReplacer("&", "%26", "=", "%3D", "+", "%2B", "#", "%23")

func escapeValue(v string) string {
	return valueEscaper.Replace(url.PathEscape(v))
}

// restyLogger routes resty's own warnings through slog.
type restyLogger struct{ l *slog.Logger }

func (r restyLogger) Errorf(format string, v ...interface{}) {
	r.l.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (r restyLogger) Warnf(format string, v ...interface{}) {
	r.l.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (r restyLogger) Debugf(format string, v ...interface{}) {
	r.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}
