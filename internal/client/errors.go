package client

import (
	"errors"
	"fmt"
)

// Operation names used in errors and log lines.
const (
	OpFactoryCreate = "factory.create"
	OpFindFile      = "findFile"
	OpFindNextFile  = "findNextFile"
	OpClose         = "close"
	OpLoadFile      = "RPC_Loadfile"
)

// ConnectivityError reports a request that never produced an HTTP response:
// refused or reset connections, DNS failures and timeouts.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: camera unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProtocolError reports a response the camera did send but that we cannot
// accept: a non-2xx status, a body without the expected fields, or a
// findFile answer without the OK marker.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := e.Op + ": "
	if e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299) {
		msg += fmt.Sprintf("status code %d", e.StatusCode)
	} else {
		msg += "unexpected response"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += fmt.Sprintf(" (body %q)", truncate(e.Body, 120))
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrNotOK is wrapped by the ProtocolError returned when findFile answers
// without the OK marker.
var ErrNotOK = errors.New("search not accepted")

// IsConnectivity reports whether err is, or wraps, a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
