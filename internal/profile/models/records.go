package models

import "time"

// Account is the identity record owned by signup.
type Account struct {
	ID        int64
	Email     string
	FirstName *string
	LastName  *string
	CreatedAt time.Time
}

// AccountNames carries the mergeable account fields. Nil fields are left as
// stored.
type AccountNames struct {
	FirstName *string
	LastName  *string
}

// Demographic is the full-row write model for demographic_data.
type Demographic struct {
	UserID           int64
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
}

// Financial is the full-row write model for financial_data.
type Financial struct {
	UserID                   int64
	AnnualIncome             *string
	HasHealthInsurance       *bool
	InsuranceType            *string
	HasLongtermCareInsurance *bool
	HasEstatePlan            *bool
}

// Response is the write model for user_responses. HealthData nil stores NULL.
type Response struct {
	UserID      int64
	HealthData  *string
	SubmittedAt time.Time
}

// OutboxEntry is a domain event waiting to be relayed.
type OutboxEntry struct {
	ID          string
	AggregateID int64
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

const (
	EventProfileUpserted      = "profile.upserted"
	EventSubmissionRegistered = "submission.registered"
)
