package client

import (
	"context"
	"errors"
)

const loadFilePath = "/cgi-bin/RPC_Loadfile"

// LoadFile downloads the file at remotePath (a FilePath value from a
// findNextFile record) and returns its contents.
func (c *AmcrestClient) LoadFile(ctx context.Context, remotePath string) ([]byte, error) {
	if remotePath == "" {
		return nil, &ProtocolError{Op: OpLoadFile, Err: errors.New("empty file path")}
	}
	if remotePath[0] != '/' {
		remotePath = "/" + remotePath
	}

	c.log.Info("downloading", "url", c.Config.BaseURL()+loadFilePath+remotePath)

	resp, err := c.get(ctx, OpLoadFile, loadFilePath+remotePath)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
