package stablecoins

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/perenalabs/perenapay-backend/pkg/config"
)

// Stablecoin describes one accepted settlement currency.
type Stablecoin struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Mint    string          `json:"mint,omitempty"`
	USDRate decimal.Decimal `json:"usd_rate"`
}

// Catalog is the static registry of accepted stablecoins and their on-chain
// mints. All supported coins track the dollar, so rates are 1:1; the field
// exists so a depegged coin can be delisted or repriced by config change and
// redeploy rather than a code change.
type Catalog struct {
	coins []Stablecoin
	mints map[string]string
}

// NewCatalog builds the catalog from the payment config's mint registry.
func NewCatalog(cfg config.PaymentsConfig) *Catalog {
	mints := map[string]string{}
	for code, mint := range cfg.TokenMints() {
		mints[strings.ToUpper(code)] = mint
	}

	one := decimal.NewFromInt(1)
	coins := []Stablecoin{
		{Code: "USDC", Name: "USD Coin", USDRate: one},
		{Code: "USDT", Name: "Tether USD", USDRate: one},
		{Code: "PYUSD", Name: "PayPal USD", USDRate: one},
		{Code: "USD*", Name: "Perena USD", USDRate: one},
	}
	for i := range coins {
		coins[i].Mint = mints[coins[i].Code]
	}

	return &Catalog{coins: coins, mints: mints}
}

// ListAccepted returns every stablecoin payments may settle in.
func (c *Catalog) ListAccepted() []Stablecoin {
	out := make([]Stablecoin, len(c.coins))
	copy(out, c.coins)
	return out
}

// IsAccepted reports whether the currency code can settle a payment.
func (c *Catalog) IsAccepted(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, coin := range c.coins {
		if coin.Code == code {
			return true
		}
	}
	return false
}

// TokenMintFor resolves the on-chain mint for a currency code. Accepted coins
// without a configured mint report false; payers then rely on the reference
// alone.
func (c *Catalog) TokenMintFor(currency string) (string, bool) {
	mint, ok := c.mints[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok || mint == "" {
		return "", false
	}
	return mint, true
}
