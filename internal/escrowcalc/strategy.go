package escrowcalc

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sprout-escrow/backend/internal/models"
)

// Yield strategies
const (
	StrategyXRPLAMM       = "xrpl-amm"
	StrategyBitgetSavings = "bitget-savings"
)

const (
	MinLockPeriodDays = 1
	MaxLockPeriodDays = 365
)

type Strategy struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	APY         float64 `json:"apy"`
}

var strategies = map[string]Strategy{
	models.AssetXRP: {
		ID:          StrategyXRPLAMM,
		Title:       "XRPL AMM",
		Description: "RLUSD/XRP Liquidity Pool",
		APY:         0.125,
	},
	models.AssetRLUSD: {
		ID:          StrategyBitgetSavings,
		Title:       "Bitget RLUSD Savings",
		Description: "Off-chain yield option",
		APY:         0.15,
	},
}

// StrategyForAsset returns the only yield strategy available for the asset.
func StrategyForAsset(asset string) (Strategy, error) {
	s, ok := strategies[asset]
	if !ok {
		return Strategy{}, fmt.Errorf("unsupported asset %q", asset)
	}
	return s, nil
}

type Estimate struct {
	Strategy string  `json:"strategy"`
	APY      float64 `json:"apy"`
	Daily    float64 `json:"daily"`
	Total    float64 `json:"total"`
	Final    float64 `json:"final"` // amount + total
}

// EstimateYield is the create-form preview.
func EstimateYield(amount float64, asset string, durationDays int) (Estimate, error) {
	s, err := StrategyForAsset(asset)
	if err != nil {
		return Estimate{}, err
	}
	if amount < 0 {
		return Estimate{}, fmt.Errorf("amount must not be negative")
	}
	if durationDays < MinLockPeriodDays || durationDays > MaxLockPeriodDays {
		return Estimate{}, fmt.Errorf("duration must be between %d and %d days", MinLockPeriodDays, MaxLockPeriodDays)
	}

	total := ProjectedYield(amount, s.APY, durationDays)
	return Estimate{
		Strategy: s.ID,
		APY:      s.APY,
		Daily:    ProjectedYield(amount, s.APY, 1),
		Total:    total,
		Final:    amount + total,
	}, nil
}

// SplitYield divides earned yield between the parties, rounded to cents.
func SplitYield(yieldEarned string, split models.YieldSplit) (buyer, seller, protocol models.YieldShare, err error) {
	if !split.Valid() {
		return buyer, seller, protocol, fmt.Errorf("yield split must add up to 100%%")
	}
	y, err := decimal.NewFromString(yieldEarned)
	if err != nil {
		return buyer, seller, protocol, fmt.Errorf("invalid yield amount %q: %w", yieldEarned, err)
	}

	share := func(pct int) models.YieldShare {
		amt := y.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
		return models.YieldShare{Percent: pct, Amount: amt.StringFixed(2)}
	}
	return share(split.Buyer), share(split.Seller), share(split.Protocol), nil
}

// FormatAmount renders an amount the way the UI shows it.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
