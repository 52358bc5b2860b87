package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"waterlily/internal/profile/models"
	dErrors "waterlily/pkg/domain-errors"
)

// Assemble turns the joined row into the client document. A dependent section
// is present only when its row exists.
//
// race_ethnicity is decoded back to a list; a stored value that is not an
// encoded list is returned as the raw string instead of failing the request.
// An undecodable health_data blob is a persistence failure.
func Assemble(row *models.JoinedRow) (*models.CompositeView, error) {
	if row == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
	}

	view := &models.CompositeView{
		User: &models.UserSection{
			ID:        row.UserID,
			Email:     row.Email,
			FirstName: row.FirstName,
			LastName:  row.LastName,
		},
	}

	if row.DemographicID != nil {
		view.Demographic = &models.DemographicSection{
			ID:               *row.DemographicID,
			RaceEthnicity:    decodeRaceEthnicity(row.RaceEthnicity),
			MaritalStatus:    row.MaritalStatus,
			EmploymentStatus: row.EmploymentStatus,
			EducationLevel:   row.EducationLevel,
			Gender:           row.Gender,
			Dob:              row.Dob,
			ZipCode:          row.ZipCode,
			HouseholdSize:    row.HouseholdSize,
			PrimaryLanguage:  row.PrimaryLanguage,
			VeteranStatus:    row.VeteranStatus,
		}
	}

	if row.FinancialID != nil {
		view.Financial = &models.FinancialSection{
			ID:                       *row.FinancialID,
			AnnualIncome:             row.AnnualIncome,
			HasHealthInsurance:       row.HasHealthInsurance,
			InsuranceType:            row.InsuranceType,
			HasLongtermCareInsurance: row.HasLongtermCareInsurance,
			HasEstatePlan:            row.HasEstatePlan,
		}
	}

	if row.ResponseID != nil {
		healthData, err := decodeHealthData(row.HealthData)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodePersistence, "stored health_data is not valid JSON")
		}
		view.Response = &models.ResponseSection{
			ID:          *row.ResponseID,
			HealthData:  healthData,
			SubmittedAt: row.SubmittedAt,
		}
	}

	return view, nil
}

func decodeRaceEthnicity(stored *string) *models.RaceEthnicity {
	if stored == nil {
		return nil
	}
	if values, ok := models.DecodeRaceEthnicity(*stored); ok {
		return models.RaceEthnicityList(values...)
	}
	return models.RaceEthnicityRaw(*stored)
}

func decodeHealthData(stored *string) (json.RawMessage, error) {
	if stored == nil || strings.TrimSpace(*stored) == "" {
		return nil, nil
	}
	if !json.Valid([]byte(*stored)) {
		return nil, fmt.Errorf("health_data: invalid JSON of length %d", len(*stored))
	}
	return json.RawMessage(*stored), nil
}
