package search

import (
	"context"
	"log/slog"

	"amcam/internal/client"
	"amcam/pkg/models"
)

// Camera is the subset of the mediaFileFind.cgi API a search needs.
type Camera interface {
	FactoryCreate(ctx context.Context) (string, error)
	FindFile(ctx context.Context, object string, cond client.FindCondition) error
	FindNextFile(ctx context.Context, object string, count int) (models.Page, error)
	CloseFactory(ctx context.Context, object string) error
}

// Session owns one factory object on the camera. The object has no resume
// semantics, so every search window gets a fresh Session and every Session
// must be closed, including on error paths.
type Session struct {
	cam    Camera
	object string
	closed bool
	log    *slog.Logger
}

// Open creates the factory object. Failures here are never retried.
func Open(ctx context.Context, cam Camera, log *slog.Logger) (*Session, error) {
	id, err := cam.FactoryCreate(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{cam: cam, object: id, log: log.With("object", id)}, nil
}

func (s *Session) Object() string { return s.object }

// Query issues findFile. Any error means the window cannot be searched.
func (s *Session) Query(ctx context.Context, cond client.FindCondition) error {
	return s.cam.FindFile(ctx, s.object, cond)
}

// NextPage requests up to count records.
func (s *Session) NextPage(ctx context.Context, count int) (models.Page, error) {
	page, err := s.cam.FindNextFile(ctx, s.object, count)
	if err != nil {
		return models.Page{}, err
	}
	s.log.Info("found files", "found", page.Found, "records", len(page.Records))
	return page, nil
}

// Close releases the factory object. It is safe to call more than once and
// still reaches the camera after ctx has been cancelled.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.cam.CloseFactory(context.WithoutCancel(ctx), s.object)
}
