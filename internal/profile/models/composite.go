package models

import (
	"encoding/json"
	"time"
)

// CompositeView is the client-facing document combining an account with its
// dependent records. Dependent sections are nil until their row exists.
type CompositeView struct {
	User        *UserSection        `json:"user"`
	Demographic *DemographicSection `json:"demographic"`
	Financial   *FinancialSection   `json:"financial"`
	Response    *ResponseSection    `json:"response"`
}

type UserSection struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type DemographicSection struct {
	ID               int64          `json:"id"`
	RaceEthnicity    *RaceEthnicity `json:"race_ethnicity"`
	MaritalStatus    *string        `json:"marital_status"`
	EmploymentStatus *string        `json:"employment_status"`
	EducationLevel   *string        `json:"education_level"`
	Gender           *string        `json:"gender"`
	Dob              *string        `json:"dob"`
	ZipCode          *string        `json:"zip_code"`
	HouseholdSize    *int64         `json:"household_size"`
	PrimaryLanguage  *string        `json:"primary_language"`
	VeteranStatus    *string        `json:"veteran_status"`
}

type FinancialSection struct {
	ID                       int64   `json:"id"`
	AnnualIncome             *string `json:"annual_income"`
	HasHealthInsurance       *bool   `json:"has_health_insurance"`
	InsuranceType            *string `json:"insurance_type"`
	HasLongtermCareInsurance *bool   `json:"has_longterm_care_insurance"`
	HasEstatePlan            *bool   `json:"has_estate_plan"`
}

type ResponseSection struct {
	ID          int64           `json:"id"`
	HealthData  json.RawMessage `json:"health_data"`
	SubmittedAt *time.Time      `json:"submitted_at"`
}

// JoinedRow is one row of the account LEFT JOIN demographic/financial/response
// query, with every dependent column nullable.
type JoinedRow struct {
	UserID    int64
	Email     string
	FirstName *string
	LastName  *string

	DemographicID    *int64
	RaceEthnicity    *string
	MaritalStatus    *string
	EmploymentStatus *string
	EducationLevel   *string
	Gender           *string
	Dob              *string
	ZipCode          *string
	HouseholdSize    *int64
	PrimaryLanguage  *string
	VeteranStatus    *string

	FinancialID              *int64
	AnnualIncome             *string
	HasHealthInsurance       *bool
	InsuranceType            *string
	HasLongtermCareInsurance *bool
	HasEstatePlan            *bool

	ResponseID  *int64
	HealthData  *string
	SubmittedAt *time.Time
}
