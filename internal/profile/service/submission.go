package service

import (
	"context"
	"time"

	"waterlily/internal/profile/models"
	"waterlily/pkg/requestcontext"
)

// RegisterSubmission records that the user completed the survey by inserting
// a bare response row. A second call fails with already_submitted; the
// store's unique constraint decides, not a prior read.
func (s *Service) RegisterSubmission(ctx context.Context, userID int64) (int64, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "profile.RegisterSubmission", userID)
	defer span.End()

	id, err := s.registerSubmission(ctx, userID)
	s.finish(span, "register", start, err)
	return id, err
}

func (s *Service) registerSubmission(ctx context.Context, userID int64) (int64, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}

	var responseID int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.LockAccount(txCtx, userID); err != nil {
			return err
		}
		id, err := s.store.InsertResponse(txCtx, &models.Response{
			UserID:      userID,
			SubmittedAt: requestcontext.Now(txCtx),
		})
		if err != nil {
			return err
		}
		responseID = id

		event, err := newEvent(txCtx, models.EventSubmissionRegistered, userID, submissionEvent{ResponseID: id})
		if err != nil {
			return err
		}
		return s.store.AppendOutbox(txCtx, event)
	})
	if err != nil {
		err = translate(err, "failed to submit response")
		s.logFailure(ctx, "submission registration failed", userID, err)
		return 0, err
	}

	s.committed(ctx, userID)
	return responseID, nil
}
