package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterlily/internal/profile/models"
	"waterlily/pkg/platform/sentinel"
)

// profileStore is the method set shared by SQLStore and Memory.
type profileStore interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	CreateAccount(ctx context.Context, email string, firstName, lastName *string) (int64, error)
	LockAccount(ctx context.Context, userID int64) error
	MergeAccountNames(ctx context.Context, userID int64, names models.AccountNames) error
	UpsertDemographic(ctx context.Context, d *models.Demographic) error
	UpsertFinancial(ctx context.Context, f *models.Financial) error
	FindResponseID(ctx context.Context, userID int64) (int64, error)
	UpsertResponse(ctx context.Context, r *models.Response) error
	InsertResponse(ctx context.Context, r *models.Response) (int64, error)
	FindComposite(ctx context.Context, userID int64) (*models.JoinedRow, error)
	AppendOutbox(ctx context.Context, e *models.OutboxEntry) error
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error
}

func ptr[T any](v T) *T { return &v }

func runStoreContract(t *testing.T, newStore func(t *testing.T) profileStore) {
	ctx := context.Background()

	t.Run("composite of a new account has no dependents", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "new@example.com", nil, nil)
		require.NoError(t, err)

		row, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, row.UserID)
		assert.Equal(t, "new@example.com", row.Email)
		assert.Nil(t, row.DemographicID)
		assert.Nil(t, row.FinancialID)
		assert.Nil(t, row.ResponseID)
	})

	t.Run("missing account", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindComposite(ctx, 999)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		err = s.RunInTx(ctx, func(txCtx context.Context) error {
			return s.LockAccount(txCtx, 999)
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateAccount(ctx, "dup@example.com", nil, nil)
		require.NoError(t, err)
		_, err = s.CreateAccount(ctx, "dup@example.com", nil, nil)
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("account names merge field by field", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "merge@example.com", ptr("Jane"), ptr("Doe"))
		require.NoError(t, err)

		require.NoError(t, s.MergeAccountNames(ctx, userID, models.AccountNames{FirstName: ptr("Janet")}))

		row, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "Janet", *row.FirstName)
		require.NotNil(t, row.LastName)
		assert.Equal(t, "Doe", *row.LastName)
	})

	t.Run("demographic upsert overwrites the whole row", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "demo@example.com", nil, nil)
		require.NoError(t, err)

		require.NoError(t, s.UpsertDemographic(ctx, &models.Demographic{
			UserID:        userID,
			RaceEthnicity: ptr(`["Asian"]`),
			ZipCode:       ptr("10001"),
			Dob:           ptr("1990-04-01"),
			HouseholdSize: ptr(int64(3)),
		}))
		first, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, first.DemographicID)
		assert.Equal(t, "1990-04-01", *first.Dob)
		assert.Equal(t, int64(3), *first.HouseholdSize)

		require.NoError(t, s.UpsertDemographic(ctx, &models.Demographic{
			UserID:        userID,
			MaritalStatus: ptr("Married"),
		}))
		second, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, *first.DemographicID, *second.DemographicID, "update must not create a second row")
		assert.Equal(t, "Married", *second.MaritalStatus)
		assert.Nil(t, second.ZipCode)
		assert.Nil(t, second.RaceEthnicity)
		assert.Nil(t, second.Dob)
		assert.Nil(t, second.HouseholdSize)
	})

	t.Run("financial upsert keeps booleans", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "fin@example.com", nil, nil)
		require.NoError(t, err)

		require.NoError(t, s.UpsertFinancial(ctx, &models.Financial{
			UserID:             userID,
			AnnualIncome:       ptr("50k-75k"),
			HasHealthInsurance: ptr(true),
			HasEstatePlan:      ptr(false),
		}))
		row, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, row.FinancialID)
		assert.Equal(t, "50k-75k", *row.AnnualIncome)
		assert.True(t, *row.HasHealthInsurance)
		assert.False(t, *row.HasEstatePlan)
		assert.Nil(t, row.InsuranceType)
		assert.Nil(t, row.HasLongtermCareInsurance)
	})

	t.Run("response upsert refreshes submitted_at", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "resp@example.com", nil, nil)
		require.NoError(t, err)

		_, err = s.FindResponseID(ctx, userID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, s.UpsertResponse(ctx, &models.Response{UserID: userID, HealthData: ptr(`{"smoker":false}`), SubmittedAt: t1}))
		id, err := s.FindResponseID(ctx, userID)
		require.NoError(t, err)

		t2 := t1.Add(time.Hour)
		require.NoError(t, s.UpsertResponse(ctx, &models.Response{UserID: userID, SubmittedAt: t2}))
		again, err := s.FindResponseID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		row, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, row.HealthData)
		require.NotNil(t, row.SubmittedAt)
		assert.True(t, t2.Equal(*row.SubmittedAt), "submitted_at %v", row.SubmittedAt)
	})

	t.Run("insert response rejects a second row", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "once@example.com", nil, nil)
		require.NoError(t, err)

		id, err := s.InsertResponse(ctx, &models.Response{UserID: userID, SubmittedAt: time.Now()})
		require.NoError(t, err)
		assert.Positive(t, id)

		_, err = s.InsertResponse(ctx, &models.Response{UserID: userID, SubmittedAt: time.Now()})
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("failed transaction leaves no writes", func(t *testing.T) {
		s := newStore(t)
		userID, err := s.CreateAccount(ctx, "atomic@example.com", ptr("Old"), nil)
		require.NoError(t, err)
		boom := errors.New("financial write failed")

		err = s.RunInTx(ctx, func(txCtx context.Context) error {
			require.NoError(t, s.MergeAccountNames(txCtx, userID, models.AccountNames{FirstName: ptr("New")}))
			require.NoError(t, s.UpsertDemographic(txCtx, &models.Demographic{UserID: userID, ZipCode: ptr("10001")}))
			require.NoError(t, s.AppendOutbox(txCtx, &models.OutboxEntry{ID: "evt-1", AggregateID: userID, EventType: models.EventProfileUpserted, Payload: []byte(`{}`), CreatedAt: time.Now()}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		row, err := s.FindComposite(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "Old", *row.FirstName)
		assert.Nil(t, row.DemographicID)

		pending, err := s.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("outbox pending and published", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.AppendOutbox(ctx, &models.OutboxEntry{
				ID:          id,
				AggregateID: 7,
				EventType:   models.EventProfileUpserted,
				Payload:     []byte(`{"user_id":7}`),
				CreatedAt:   base.Add(time.Duration(i) * time.Second),
			}))
		}

		pending, err := s.PendingOutbox(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "a", pending[0].ID)
		assert.Equal(t, "b", pending[1].ID)
		assert.JSONEq(t, `{"user_id":7}`, string(pending[0].Payload))

		require.NoError(t, s.MarkOutboxPublished(ctx, []string{"a", "b"}, base.Add(time.Minute)))
		pending, err = s.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "c", pending[0].ID)
	})
}
