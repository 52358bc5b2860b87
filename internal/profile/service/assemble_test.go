package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterlily/internal/profile/models"
	dErrors "waterlily/pkg/domain-errors"
)

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func TestAssemble(t *testing.T) {
	submitted := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	t.Run("account only", func(t *testing.T) {
		view, err := Assemble(&models.JoinedRow{UserID: 42, Email: "a@example.com"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), view.User.ID)
		assert.Nil(t, view.Demographic)
		assert.Nil(t, view.Financial)
		assert.Nil(t, view.Response)
	})

	t.Run("encoded race list is decoded", func(t *testing.T) {
		view, err := Assemble(&models.JoinedRow{
			UserID:        42,
			DemographicID: int64Ptr(7),
			RaceEthnicity: strPtr(`["Asian","White"]`),
		})
		require.NoError(t, err)
		require.NotNil(t, view.Demographic)
		assert.Equal(t, models.RaceEthnicityList("Asian", "White"), view.Demographic.RaceEthnicity)
	})

	t.Run("legacy race text falls back to raw string", func(t *testing.T) {
		view, err := Assemble(&models.JoinedRow{
			UserID:        42,
			DemographicID: int64Ptr(7),
			RaceEthnicity: strPtr("Asian"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.RaceEthnicityRaw("Asian"), view.Demographic.RaceEthnicity)

		body, err := json.Marshal(view.Demographic)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"race_ethnicity":"Asian"`)
	})

	t.Run("null race stays null", func(t *testing.T) {
		view, err := Assemble(&models.JoinedRow{UserID: 42, DemographicID: int64Ptr(7)})
		require.NoError(t, err)
		assert.Nil(t, view.Demographic.RaceEthnicity)
	})

	t.Run("response with health data", func(t *testing.T) {
		view, err := Assemble(&models.JoinedRow{
			UserID:      42,
			ResponseID:  int64Ptr(3),
			HealthData:  strPtr(`{"a":1}`),
			SubmittedAt: &submitted,
		})
		require.NoError(t, err)
		require.NotNil(t, view.Response)
		assert.Equal(t, int64(3), view.Response.ID)
		assert.JSONEq(t, `{"a":1}`, string(view.Response.HealthData))
		assert.Equal(t, &submitted, view.Response.SubmittedAt)
	})

	t.Run("null health data serializes as null", func(t *testing.T) {
		view, err := Assemble(&models.JoinedRow{UserID: 42, ResponseID: int64Ptr(3)})
		require.NoError(t, err)
		body, err := json.Marshal(view.Response)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"health_data":null`)
	})

	t.Run("corrupt health data is a persistence failure", func(t *testing.T) {
		_, err := Assemble(&models.JoinedRow{
			UserID:     42,
			ResponseID: int64Ptr(3),
			HealthData: strPtr(`{"a":`),
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
	})

	t.Run("nil row", func(t *testing.T) {
		_, err := Assemble(nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
