package service

import (
	"Dyvine/internal/livestream"
	"Dyvine/model"
	"context"
)

// StartLivestream connects to userID's live room and schedules the capture.
// A failed connect returns the terminal record together with the error; a
// user with an active capture gets a Conflict and no record.
func (s *Service) StartLivestream(ctx context.Context, userID string) (model.Operation, error) {
	op, capture, err := s.live.Start(ctx, userID)
	if err != nil {
		if op.ID != "" {
			s.supervisor.Report(op)
		}
		return op, err
	}
	if err := s.supervisor.Submit(op.ID, op.Kind, false, capture.Run); err != nil {
		capture.Abort(context.WithoutCancel(ctx), err)
		if failed, gerr := s.registry.Get(op.ID); gerr == nil {
			s.supervisor.Report(failed)
			return failed, err
		}
		return op, err
	}
	return op, nil
}

// StartLivestreamFromURL resolves the user from a room URL and starts a
// capture for it.
func (s *Service) StartLivestreamFromURL(ctx context.Context, rawURL string) (model.Operation, error) {
	userID, err := livestream.UserIDFromURL(rawURL)
	if err != nil {
		return model.Operation{}, err
	}
	return s.StartLivestream(ctx, userID)
}
