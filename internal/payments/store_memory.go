package payments

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
)

// memoryStore is the degraded-mode backend. It keeps everything in process
// memory behind a single mutex, which also makes every operation atomic with
// respect to concurrent verifiers.
type memoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*models.Payment
	byRef map[string]uuid.UUID
}

// NewMemoryStore builds the in-memory payment store.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:  make(map[uuid.UUID]*models.Payment),
		byRef: make(map[string]uuid.UUID),
	}
}

func (s *memoryStore) Backend() string { return "memory" }

func (s *memoryStore) Ping(context.Context) error { return nil }

func clonePayment(p *models.Payment) *models.Payment {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TransactionSignature != nil {
		sig := *p.TransactionSignature
		cp.TransactionSignature = &sig
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		cp.CompletedAt = &at
	}
	if p.Metadata != nil {
		cp.Metadata = append([]byte(nil), p.Metadata...)
	}
	return &cp
}

func (s *memoryStore) Create(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[payment.Reference]; exists {
		return ErrDuplicateReference
	}
	if _, exists := s.byID[payment.ID]; exists {
		return ErrDuplicateReference
	}

	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	s.byID[payment.ID] = clonePayment(payment)
	s.byRef[payment.Reference] = payment.ID
	return nil
}

func (s *memoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(payment), nil
}

func (s *memoryStore) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(s.byID[id]), nil
}

func (s *memoryStore) ListByMerchant(ctx context.Context, merchantID uuid.UUID, filter ListFilter) ([]models.Payment, error) {
	s.mu.RLock()
	matched := make([]*models.Payment, 0)
	for _, payment := range s.byID {
		if payment.MerchantID != merchantID {
			continue
		}
		if filter.Status != nil && payment.Status != *filter.Status {
			continue
		}
		matched = append(matched, payment)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []models.Payment{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]models.Payment, 0, len(matched))
	for _, payment := range matched {
		out = append(out, *clonePayment(payment))
	}
	return out, nil
}

func (s *memoryStore) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	applyUpdates(payment, filterUpdates(updates))
	return nil
}

func (s *memoryStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	if payment.Status != from {
		return false, nil
	}
	changes := filterUpdates(updates)
	changes["status"] = to
	applyUpdates(payment, changes)
	return true, nil
}

func (s *memoryStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept int64
	for _, payment := range s.byID {
		if payment.Status != enums.PaymentStatusPending {
			continue
		}
		if payment.ExpiresAt.After(now) {
			continue
		}
		payment.Status = enums.PaymentStatusExpired
		payment.UpdatedAt = now.UTC()
		swept++
	}
	return swept, nil
}

func applyUpdates(payment *models.Payment, updates map[string]any) {
	for column, value := range updates {
		switch column {
		case "status":
			if status, ok := value.(enums.PaymentStatus); ok {
				payment.Status = status
			}
		case "transaction_signature":
			switch v := value.(type) {
			case string:
				payment.TransactionSignature = &v
			case *string:
				payment.TransactionSignature = v
			}
		case "completed_at":
			switch v := value.(type) {
			case time.Time:
				payment.CompletedAt = &v
			case *time.Time:
				payment.CompletedAt = v
			}
		case "expires_at":
			if at, ok := value.(time.Time); ok {
				payment.ExpiresAt = at
			}
		case "metadata":
			switch v := value.(type) {
			case json.RawMessage:
				payment.Metadata = append(json.RawMessage(nil), v...)
			case []byte:
				payment.Metadata = append(json.RawMessage(nil), v...)
			}
		}
	}
	payment.UpdatedAt = time.Now().UTC()
}
