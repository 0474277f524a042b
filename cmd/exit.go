package cmd

import (
	"errors"

	"amcam/internal/client"
	"amcam/internal/config"
)

// exitCode maps a run error onto the process status scripts rely on:
// 0 on success, the HTTP status when factory.create is refused, the usage
// code for command line problems and -1 for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var ue *config.UsageError
	if errors.As(err, &ue) {
		return ue.Code
	}

	var pe *client.ProtocolError
	if errors.As(err, &pe) && pe.Op == client.OpFactoryCreate &&
		(pe.StatusCode < 200 || pe.StatusCode > 299) && pe.StatusCode != 0 {
		return pe.StatusCode
	}
	return -1
}
