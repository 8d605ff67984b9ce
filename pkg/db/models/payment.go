package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perenalabs/perenapay-backend/pkg/enums"
)

// Payment is the durable record of a single payment request. The reference
// column carries a unique index: a reference is never reused, even after the
// payment reaches a terminal state.
type Payment struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID           uuid.UUID           `gorm:"column:merchant_id;type:uuid;not null;index"`
	Amount               decimal.Decimal     `gorm:"column:amount;type:numeric(20,8);not null"`
	Currency             string              `gorm:"column:currency;not null"`
	Reference            string              `gorm:"column:reference;not null;uniqueIndex:idx_payments_reference"`
	Status               enums.PaymentStatus `gorm:"column:status;not null;index"`
	TransactionSignature *string             `gorm:"column:transaction_signature"`
	ExpiresAt            time.Time           `gorm:"column:expires_at;not null"`
	CompletedAt          *time.Time          `gorm:"column:completed_at"`
	Metadata             json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
