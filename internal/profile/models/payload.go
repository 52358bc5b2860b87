package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	dErrors "waterlily/pkg/domain-errors"
	pstrings "waterlily/pkg/platform/strings"
)

const (
	maxNameLength  = 100
	maxFieldLength = 255
	maxZipLength   = 20
	dobLayout      = "2006-01-02"
)

// ProfilePayload is a partial survey submission. Every field is optional; a
// nil field means "not supplied in this request".
type ProfilePayload struct {
	// Account (meta) fields, merged field by field.
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`

	// Demographic fields, written as a full row.
	RaceEthnicity    *RaceEthnicity `json:"race_ethnicity"`
	MaritalStatus    *string        `json:"marital_status"`
	EmploymentStatus *string        `json:"employment_status"`
	EducationLevel   *string        `json:"education_level"`
	Gender           *string        `json:"gender"`
	Dob              *string        `json:"dob"`
	ZipCode          *string        `json:"zip_code"`
	HouseholdSize    *int           `json:"household_size"`
	PrimaryLanguage  *string        `json:"primary_language"`
	VeteranStatus    *string        `json:"veteran_status"`

	// Financial fields, written as a full row.
	AnnualIncome             *string `json:"annual_income"`
	HasHealthInsurance       *bool   `json:"has_health_insurance"`
	InsuranceType            *string `json:"insurance_type"`
	HasLongtermCareInsurance *bool   `json:"has_longterm_care_insurance"`
	HasEstatePlan            *bool   `json:"has_estate_plan"`

	// Opaque health blob.
	HealthData json.RawMessage `json:"health_data"`
}

// HasMeta reports whether any account field was supplied.
func (p *ProfilePayload) HasMeta() bool {
	return p.FirstName != nil || p.LastName != nil
}

// HasHealthData reports whether an answer was supplied for the health blob.
// null, false, 0 and "" count as no answer; objects and arrays always count,
// even when empty.
func (p *ProfilePayload) HasHealthData() bool {
	trimmed := bytes.TrimSpace(p.HealthData)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{', '[':
		return true
	}
	var scalar any
	if err := json.Unmarshal(trimmed, &scalar); err != nil {
		// Let Validate report it.
		return true
	}
	switch v := scalar.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

// Normalize trims whitespace from free-text fields.
func (p *ProfilePayload) Normalize() {
	if p == nil {
		return
	}
	for _, field := range []*string{
		p.FirstName, p.LastName, p.MaritalStatus, p.EmploymentStatus, p.EducationLevel,
		p.Gender, p.Dob, p.ZipCode, p.PrimaryLanguage, p.VeteranStatus,
		p.AnnualIncome, p.InsuranceType,
	} {
		pstrings.TrimPtr(field)
	}
}

// Follows validation order: Size -> Syntax -> Semantic.
func (p *ProfilePayload) Validate() error {
	if p == nil {
		return dErrors.New(dErrors.CodeMalformedInput, "request body is required")
	}

	if pstrings.ExceedsRunes(p.FirstName, maxNameLength) || pstrings.ExceedsRunes(p.LastName, maxNameLength) {
		return dErrors.New(dErrors.CodeMalformedInput, fmt.Sprintf("names must be %d characters or less", maxNameLength))
	}
	if pstrings.ExceedsRunes(p.ZipCode, maxZipLength) {
		return dErrors.New(dErrors.CodeMalformedInput, fmt.Sprintf("zip_code must be %d characters or less", maxZipLength))
	}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"marital_status", p.MaritalStatus},
		{"employment_status", p.EmploymentStatus},
		{"education_level", p.EducationLevel},
		{"gender", p.Gender},
		{"primary_language", p.PrimaryLanguage},
		{"veteran_status", p.VeteranStatus},
		{"annual_income", p.AnnualIncome},
		{"insurance_type", p.InsuranceType},
	} {
		if pstrings.ExceedsRunes(f.value, maxFieldLength) {
			return dErrors.New(dErrors.CodeMalformedInput, fmt.Sprintf("%s must be %d characters or less", f.name, maxFieldLength))
		}
	}

	if p.Dob != nil && *p.Dob != "" {
		if _, err := time.Parse(dobLayout, *p.Dob); err != nil {
			return dErrors.New(dErrors.CodeMalformedInput, "dob must be a date in YYYY-MM-DD format")
		}
	}
	if len(p.HealthData) > 0 && !json.Valid(p.HealthData) {
		return dErrors.New(dErrors.CodeMalformedInput, "health_data must be valid JSON")
	}

	if p.HouseholdSize != nil && *p.HouseholdSize < 0 {
		return dErrors.New(dErrors.CodeMalformedInput, "household_size must not be negative")
	}
	return nil
}

// RaceEthnicity is the set-valued race/ethnicity answer. Clients normally
// send a list of strings; a plain string is accepted and kept verbatim.
type RaceEthnicity struct {
	Values []string
	Raw    string
	IsList bool
}

// RaceEthnicityList builds a list-valued answer.
func RaceEthnicityList(values ...string) *RaceEthnicity {
	return &RaceEthnicity{Values: values, IsList: true}
}

// RaceEthnicityRaw builds a plain string answer.
func RaceEthnicityRaw(raw string) *RaceEthnicity {
	return &RaceEthnicity{Raw: raw}
}

func (r *RaceEthnicity) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("race_ethnicity: empty value")
	}
	switch trimmed[0] {
	case '[':
		var values []string
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return fmt.Errorf("race_ethnicity must be a list of strings: %w", err)
		}
		*r = RaceEthnicity{Values: values, IsList: true}
		return nil
	case '"':
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("race_ethnicity: %w", err)
		}
		*r = RaceEthnicity{Raw: raw}
		return nil
	default:
		return fmt.Errorf("race_ethnicity must be a string or a list of strings")
	}
}

func (r RaceEthnicity) MarshalJSON() ([]byte, error) {
	if r.IsList {
		values := r.Values
		if values == nil {
			values = []string{}
		}
		return json.Marshal(values)
	}
	return json.Marshal(r.Raw)
}

// Encode returns the storage text form. Lists are trimmed, de-duplicated and
// JSON-encoded; plain strings are stored as-is. An empty plain string is not
// an answer and encodes to nil.
func (r *RaceEthnicity) Encode() (*string, error) {
	if r == nil {
		return nil, nil
	}
	if !r.IsList {
		if r.Raw == "" {
			return nil, nil
		}
		raw := r.Raw
		return &raw, nil
	}
	values := pstrings.DedupeAndTrim(r.Values)
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode race_ethnicity: %w", err)
	}
	text := string(encoded)
	return &text, nil
}

// DecodeRaceEthnicity reverses Encode. ok is false when stored is not a valid
// encoded list; callers decide how lenient to be.
func DecodeRaceEthnicity(stored string) (values []string, ok bool) {
	if err := json.Unmarshal([]byte(stored), &values); err != nil {
		return nil, false
	}
	if values == nil {
		values = []string{}
	}
	return values, true
}
