package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterlily/internal/profile/models"
	"waterlily/internal/profile/store"
	dErrors "waterlily/pkg/domain-errors"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) profileStore {
		return store.NewMemory()
	})
}

func TestMemoryRunInTxCancelled(t *testing.T) {
	s := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunInTx(ctx, func(context.Context) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestMemoryConcurrentInsertResponse(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	userID, err := s.CreateAccount(ctx, "race@example.com", nil, nil)
	require.NoError(t, err)

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertResponse(ctx, &models.Response{UserID: userID, SubmittedAt: time.Now()})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
