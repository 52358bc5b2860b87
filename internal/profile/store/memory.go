package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"waterlily/internal/profile/models"
	dErrors "waterlily/pkg/domain-errors"
	"waterlily/pkg/platform/sentinel"
	txcontext "waterlily/pkg/platform/tx"
)

type memoryRow[T any] struct {
	id  int64
	val T
}

type memoryResponse struct {
	healthData  *string
	submittedAt time.Time
}

type memoryState struct {
	nextID      int64
	accounts    map[int64]models.Account
	emails      map[string]int64
	demographic map[int64]memoryRow[models.Demographic]
	financial   map[int64]memoryRow[models.Financial]
	responses   map[int64]memoryRow[memoryResponse]
	outbox      []models.OutboxEntry
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts:    make(map[int64]models.Account),
		emails:      make(map[string]int64),
		demographic: make(map[int64]memoryRow[models.Demographic]),
		financial:   make(map[int64]memoryRow[models.Financial]),
		responses:   make(map[int64]memoryRow[memoryResponse]),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextID:      s.nextID,
		accounts:    make(map[int64]models.Account, len(s.accounts)),
		emails:      make(map[string]int64, len(s.emails)),
		demographic: make(map[int64]memoryRow[models.Demographic], len(s.demographic)),
		financial:   make(map[int64]memoryRow[models.Financial], len(s.financial)),
		responses:   make(map[int64]memoryRow[memoryResponse], len(s.responses)),
		outbox:      append([]models.OutboxEntry(nil), s.outbox...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.demographic {
		c.demographic[k] = v
	}
	for k, v := range s.financial {
		c.financial[k] = v
	}
	for k, v := range s.responses {
		c.responses[k] = v
	}
	return c
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

type memoryTxKey struct{}

// Memory is an in-process store for development and tests. Transactions run
// against a private copy of the state that replaces the shared state only on
// commit, so a failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(memoryTxKey{}).(*memoryState); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := context.WithTimeout(ctx, txcontext.DefaultTimeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	working := m.state.clone()
	if err := fn(context.WithValue(ctx, memoryTxKey{}, working)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	m.state = working
	return nil
}

// write runs fn against the transaction's state, or in a transaction of its
// own when called outside one.
func (m *Memory) write(ctx context.Context, fn func(s *memoryState) error) error {
	if s, ok := ctx.Value(memoryTxKey{}).(*memoryState); ok {
		return fn(s)
	}
	return m.RunInTx(ctx, func(txCtx context.Context) error {
		return fn(txCtx.Value(memoryTxKey{}).(*memoryState))
	})
}

func (m *Memory) read(ctx context.Context, fn func(s *memoryState) error) error {
	if s, ok := ctx.Value(memoryTxKey{}).(*memoryState); ok {
		return fn(s)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.state)
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) CreateAccount(ctx context.Context, email string, firstName, lastName *string) (int64, error) {
	var id int64
	err := m.write(ctx, func(s *memoryState) error {
		key := strings.ToLower(email)
		if _, taken := s.emails[key]; taken {
			return sentinel.ErrAlreadyUsed
		}
		id = s.id()
		s.accounts[id] = models.Account{
			ID:        id,
			Email:     email,
			FirstName: copyPtr(firstName),
			LastName:  copyPtr(lastName),
			CreatedAt: time.Now().UTC(),
		}
		s.emails[key] = id
		return nil
	})
	return id, err
}

func (m *Memory) LockAccount(ctx context.Context, userID int64) error {
	return m.read(ctx, func(s *memoryState) error {
		if _, ok := s.accounts[userID]; !ok {
			return sentinel.ErrNotFound
		}
		return nil
	})
}

func (m *Memory) MergeAccountNames(ctx context.Context, userID int64, names models.AccountNames) error {
	return m.write(ctx, func(s *memoryState) error {
		account, ok := s.accounts[userID]
		if !ok {
			return nil
		}
		if names.FirstName != nil {
			account.FirstName = copyPtr(names.FirstName)
		}
		if names.LastName != nil {
			account.LastName = copyPtr(names.LastName)
		}
		s.accounts[userID] = account
		return nil
	})
}

func (m *Memory) UpsertDemographic(ctx context.Context, d *models.Demographic) error {
	return m.write(ctx, func(s *memoryState) error {
		if _, ok := s.accounts[d.UserID]; !ok {
			return &Error{Op: "upsert demographic", Err: sentinel.ErrNotFound}
		}
		row, ok := s.demographic[d.UserID]
		if !ok {
			row.id = s.id()
		}
		row.val = *d
		s.demographic[d.UserID] = row
		return nil
	})
}

func (m *Memory) UpsertFinancial(ctx context.Context, f *models.Financial) error {
	return m.write(ctx, func(s *memoryState) error {
		if _, ok := s.accounts[f.UserID]; !ok {
			return &Error{Op: "upsert financial", Err: sentinel.ErrNotFound}
		}
		row, ok := s.financial[f.UserID]
		if !ok {
			row.id = s.id()
		}
		row.val = *f
		s.financial[f.UserID] = row
		return nil
	})
}

func (m *Memory) FindResponseID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := m.read(ctx, func(s *memoryState) error {
		row, ok := s.responses[userID]
		if !ok {
			return sentinel.ErrNotFound
		}
		id = row.id
		return nil
	})
	return id, err
}

func (m *Memory) UpsertResponse(ctx context.Context, r *models.Response) error {
	return m.write(ctx, func(s *memoryState) error {
		if _, ok := s.accounts[r.UserID]; !ok {
			return &Error{Op: "upsert response", Err: sentinel.ErrNotFound}
		}
		row, ok := s.responses[r.UserID]
		if !ok {
			row.id = s.id()
		}
		row.val = memoryResponse{healthData: copyPtr(r.HealthData), submittedAt: r.SubmittedAt.UTC()}
		s.responses[r.UserID] = row
		return nil
	})
}

func (m *Memory) InsertResponse(ctx context.Context, r *models.Response) (int64, error) {
	var id int64
	err := m.write(ctx, func(s *memoryState) error {
		if _, ok := s.accounts[r.UserID]; !ok {
			return &Error{Op: "insert response", Err: sentinel.ErrNotFound}
		}
		if _, exists := s.responses[r.UserID]; exists {
			return sentinel.ErrAlreadyUsed
		}
		id = s.id()
		s.responses[r.UserID] = memoryRow[memoryResponse]{
			id:  id,
			val: memoryResponse{healthData: copyPtr(r.HealthData), submittedAt: r.SubmittedAt.UTC()},
		}
		return nil
	})
	return id, err
}

func (m *Memory) FindComposite(ctx context.Context, userID int64) (*models.JoinedRow, error) {
	var row *models.JoinedRow
	err := m.read(ctx, func(s *memoryState) error {
		account, ok := s.accounts[userID]
		if !ok {
			return sentinel.ErrNotFound
		}
		row = &models.JoinedRow{
			UserID:    account.ID,
			Email:     account.Email,
			FirstName: copyPtr(account.FirstName),
			LastName:  copyPtr(account.LastName),
		}
		if d, ok := s.demographic[userID]; ok {
			row.DemographicID = &d.id
			row.RaceEthnicity = copyPtr(d.val.RaceEthnicity)
			row.MaritalStatus = copyPtr(d.val.MaritalStatus)
			row.EmploymentStatus = copyPtr(d.val.EmploymentStatus)
			row.EducationLevel = copyPtr(d.val.EducationLevel)
			row.Gender = copyPtr(d.val.Gender)
			row.Dob = copyPtr(d.val.Dob)
			row.ZipCode = copyPtr(d.val.ZipCode)
			row.HouseholdSize = copyPtr(d.val.HouseholdSize)
			row.PrimaryLanguage = copyPtr(d.val.PrimaryLanguage)
			row.VeteranStatus = copyPtr(d.val.VeteranStatus)
		}
		if f, ok := s.financial[userID]; ok {
			row.FinancialID = &f.id
			row.AnnualIncome = copyPtr(f.val.AnnualIncome)
			row.HasHealthInsurance = copyPtr(f.val.HasHealthInsurance)
			row.InsuranceType = copyPtr(f.val.InsuranceType)
			row.HasLongtermCareInsurance = copyPtr(f.val.HasLongtermCareInsurance)
			row.HasEstatePlan = copyPtr(f.val.HasEstatePlan)
		}
		if r, ok := s.responses[userID]; ok {
			row.ResponseID = &r.id
			row.HealthData = copyPtr(r.val.healthData)
			submittedAt := r.val.submittedAt
			row.SubmittedAt = &submittedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (m *Memory) AppendOutbox(ctx context.Context, e *models.OutboxEntry) error {
	return m.write(ctx, func(s *memoryState) error {
		entry := *e
		entry.Payload = append([]byte(nil), e.Payload...)
		s.outbox = append(s.outbox, entry)
		return nil
	})
}

func (m *Memory) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := m.read(ctx, func(s *memoryState) error {
		for _, e := range s.outbox {
			if e.PublishedAt == nil {
				entries = append(entries, e)
			}
		}
		return nil
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, err
}

func (m *Memory) MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	marked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	return m.write(ctx, func(s *memoryState) error {
		for i := range s.outbox {
			if _, ok := marked[s.outbox[i].ID]; ok {
				published := at.UTC()
				s.outbox[i].PublishedAt = &published
			}
		}
		return nil
	})
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
