package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"waterlily/internal/profile/models"
	dErrors "waterlily/pkg/domain-errors"
	"waterlily/pkg/platform/sentinel"
	"waterlily/pkg/requestcontext"
)

// Upsert applies a partial payload to the user's profile in one transaction
// and returns the fresh composite view. created is true when this call wrote
// the user's first survey response.
//
// Account names merge field by field; the demographic and financial rows are
// replaced wholesale, so a field missing from the payload is cleared.
func (s *Service) Upsert(ctx context.Context, userID int64, payload *models.ProfilePayload) (view *models.CompositeView, created bool, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "profile.Upsert", userID)
	defer span.End()

	view, created, err = s.upsert(ctx, userID, payload)
	s.finish(span, "upsert", start, err)
	return view, created, err
}

func (s *Service) upsert(ctx context.Context, userID int64, payload *models.ProfilePayload) (*models.CompositeView, bool, error) {
	if err := requireUser(userID); err != nil {
		return nil, false, err
	}
	if payload == nil {
		payload = &models.ProfilePayload{}
	}
	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, false, err
	}

	raceEthnicity, err := payload.RaceEthnicity.Encode()
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeMalformedInput, "race_ethnicity could not be encoded")
	}
	healthData, err := encodeHealthData(payload)
	if err != nil {
		return nil, false, err
	}

	now := requestcontext.Now(ctx)
	demographic := toDemographic(userID, payload, raceEthnicity)
	financial := toFinancial(userID, payload)

	var created bool
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.LockAccount(txCtx, userID); err != nil {
			return err
		}
		if payload.HasMeta() {
			names := models.AccountNames{FirstName: payload.FirstName, LastName: payload.LastName}
			if err := s.store.MergeAccountNames(txCtx, userID, names); err != nil {
				return err
			}
		}
		if err := s.store.UpsertDemographic(txCtx, demographic); err != nil {
			return err
		}
		if err := s.store.UpsertFinancial(txCtx, financial); err != nil {
			return err
		}

		// The account lock makes this read and the upsert below race-free.
		_, err := s.store.FindResponseID(txCtx, userID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			created = true
		case err != nil:
			return err
		}
		if err := s.store.UpsertResponse(txCtx, &models.Response{
			UserID:      userID,
			HealthData:  healthData,
			SubmittedAt: now,
		}); err != nil {
			return err
		}

		event, err := newEvent(txCtx, models.EventProfileUpserted, userID, upsertEvent{
			Sections: touchedSections(payload),
			Created:  created,
		})
		if err != nil {
			return err
		}
		return s.store.AppendOutbox(txCtx, event)
	})
	if err != nil {
		err = translate(err, "failed to save profile")
		s.logFailure(ctx, "profile upsert failed", userID, err)
		return nil, false, err
	}

	s.committed(ctx, userID)
	gen := s.gens.current(userID)
	view, err := s.load(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	s.rememberAt(ctx, userID, gen, view)
	return view, created, nil
}

func (s *Service) logFailure(ctx context.Context, msg string, userID int64, err error) {
	if dErrors.HasCode(err, dErrors.CodePersistence) || dErrors.HasCode(err, dErrors.CodeTimeout) {
		s.logger.ErrorContext(ctx, msg,
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.logger.InfoContext(ctx, msg,
		"error", err,
		"user_id", userID,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// encodeHealthData returns the compact JSON text of the blob, or nil when the
// payload carries none.
func encodeHealthData(payload *models.ProfilePayload) (*string, error) {
	if !payload.HasHealthData() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.HealthData); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedInput, "health_data must be valid JSON")
	}
	text := buf.String()
	return &text, nil
}

func toDemographic(userID int64, p *models.ProfilePayload, raceEthnicity *string) *models.Demographic {
	d := &models.Demographic{
		UserID:           userID,
		RaceEthnicity:    raceEthnicity,
		MaritalStatus:    p.MaritalStatus,
		EmploymentStatus: p.EmploymentStatus,
		EducationLevel:   p.EducationLevel,
		Gender:           p.Gender,
		Dob:              p.Dob,
		ZipCode:          p.ZipCode,
		PrimaryLanguage:  p.PrimaryLanguage,
		VeteranStatus:    p.VeteranStatus,
	}
	// An empty date is not a date; the column would reject it.
	if d.Dob != nil && *d.Dob == "" {
		d.Dob = nil
	}
	if p.HouseholdSize != nil {
		size := int64(*p.HouseholdSize)
		d.HouseholdSize = &size
	}
	return d
}

func toFinancial(userID int64, p *models.ProfilePayload) *models.Financial {
	return &models.Financial{
		UserID:                   userID,
		AnnualIncome:             p.AnnualIncome,
		HasHealthInsurance:       p.HasHealthInsurance,
		InsuranceType:            p.InsuranceType,
		HasLongtermCareInsurance: p.HasLongtermCareInsurance,
		HasEstatePlan:            p.HasEstatePlan,
	}
}

func touchedSections(p *models.ProfilePayload) []string {
	sections := make([]string, 0, 4)
	if p.HasMeta() {
		sections = append(sections, "user")
	}
	return append(sections, "demographic", "financial", "response")
}
