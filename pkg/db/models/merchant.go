package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/perenalabs/perenapay-backend/pkg/enums"
)

// Merchant is an onboarded account that can create payment requests. APIKey is
// the server-generated credential presented on the X-API-Key header.
type Merchant struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name               string               `gorm:"column:name;not null"`
	Email              string               `gorm:"column:email;not null;uniqueIndex:idx_merchants_email"`
	Status             enums.MerchantStatus `gorm:"column:status;not null"`
	WalletAddress      string               `gorm:"column:wallet_address;not null"`
	SettlementCurrency string               `gorm:"column:settlement_currency;not null"`
	APIKey             string               `gorm:"column:api_key;not null;uniqueIndex:idx_merchants_api_key"`
	WebhookURL         *string              `gorm:"column:webhook_url"`
	Metadata           json.RawMessage      `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
