package payments

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perenalabs/perenapay-backend/pkg/enums"
)

// CreatePaymentInput captures a merchant's request for a new payment.
type CreatePaymentInput struct {
	MerchantID uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Metadata   map[string]any
}

// ListPaymentsInput carries optional filters for merchant-scoped listings.
type ListPaymentsInput struct {
	Status *enums.PaymentStatus
	Limit  int
	Offset int
}

// ListFilter is the store-level projection of ListPaymentsInput.
type ListFilter struct {
	Status *enums.PaymentStatus
	Limit  int
	Offset int
}

// metadataScalarLimit bounds how many metadata keys survive sanitization.
// When the cap trims, the lexicographically smallest keys are kept so the
// result does not depend on map iteration order.
const metadataScalarLimit = 25

// sanitizeMetadata keeps only scalar JSON values. Nested objects, arrays and
// nulls are dropped rather than rejected so a sloppy integrator still gets a
// payment.
func sanitizeMetadata(raw map[string]any) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		if key != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	clean := make(map[string]any, len(raw))
	for _, key := range keys {
		if len(clean) >= metadataScalarLimit {
			break
		}
		switch raw[key].(type) {
		case string, bool, float64, int, int64, json.Number:
			clean[key] = raw[key]
		}
	}
	if len(clean) == 0 {
		return nil
	}
	encoded, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	return encoded
}
