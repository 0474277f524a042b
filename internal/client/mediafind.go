package client

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"amcam/pkg/models"
)

const mediaFileFindPath = "/cgi-bin/mediaFileFind.cgi"

// FindCondition is the filter passed to findFile. Start and End are both
// inclusive.
type FindCondition struct {
	Channel int
	Start   time.Time
	End     time.Time
	Media   string
}

// FactoryCreate allocates a search object on the camera and returns its id.
// The camera answers with a single key=value line, e.g. "result=1234".
func (c *AmcrestClient) FactoryCreate(ctx context.Context) (string, error) {
	c.log.Info("factory.create")

	resp, err := c.get(ctx, OpFactoryCreate, mediaFileFindPath+"?"+cgiQuery("action", "factory.create"))
	if err != nil {
		return "", err
	}

	body := resp.String()
	_, id, ok := strings.Cut(body, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", &ProtocolError{
			Op:         OpFactoryCreate,
			StatusCode: resp.StatusCode(),
			Body:       body,
			Err:        errors.New("no object id in response"),
		}
	}

	c.log.Info("factory.create object", "object", id)
	return id, nil
}

// FindFile starts a search on object. A nil error means the camera accepted
// the condition with OK.
func (c *AmcrestClient) FindFile(ctx context.Context, object string, cond FindCondition) error {
	c.log.Info("findFile",
		"from", models.FormatCameraTime(cond.Start),
		"to", models.FormatCameraTime(cond.End),
		"media", cond.Media,
		"channel", cond.Channel,
	)

	q := cgiQuery(
		"action", "findFile",
		"object", object,
		"condition.Channel", strconv.Itoa(cond.Channel),
		"condition.StartTime", models.FormatCameraTime(cond.Start),
		"condition.EndTime", models.FormatCameraTime(cond.End),
		"condition.Types[0]", cond.Media,
	)
	resp, err := c.get(ctx, OpFindFile, mediaFileFindPath+"?"+q)
	if err != nil {
		return err
	}

	body := resp.String()
	c.log.Debug("findFile response", "body", body)

	if !strings.Contains(body, "OK") {
		return &ProtocolError{Op: OpFindFile, StatusCode: resp.StatusCode(), Body: body, Err: ErrNotOK}
	}
	return nil
}

// FindNextFile fetches the next page of up to count records for object.
func (c *AmcrestClient) FindNextFile(ctx context.Context, object string, count int) (models.Page, error) {
	c.log.Info("findNextFile", "count", count)

	q := cgiQuery(
		"action", "findNextFile",
		"object", object,
		"count", strconv.Itoa(count),
	)
	resp, err := c.get(ctx, OpFindNextFile, mediaFileFindPath+"?"+q)
	if err != nil {
		return models.Page{}, err
	}

	body := resp.String()
	c.log.Debug("findNextFile response", "body", body)

	page, err := ParsePage(body)
	if err != nil {
		return models.Page{}, &ProtocolError{Op: OpFindNextFile, StatusCode: resp.StatusCode(), Body: body, Err: err}
	}
	return page, nil
}

// CloseFactory releases object on the camera. Only transport failures are
// reported; a camera that refuses the close will reap the object itself.
func (c *AmcrestClient) CloseFactory(ctx context.Context, object string) error {
	c.log.Info("factory.close", "object", object)

	_, err := c.get(ctx, OpClose, mediaFileFindPath+"?"+cgiQuery("action", "close", "object", object))
	if err != nil {
		if IsConnectivity(err) {
			return err
		}
		c.log.Warn("factory.close rejected", "object", object, "error", err)
	}
	return nil
}
