package matching

import (
	"testing"

	"github.com/stretchr/testify/require"

	"exchange/internal/domain"
)

func validRequest(category domain.OrderCategory) domain.TradeRequest {
	return domain.TradeRequest{
		LotSize:       1,
		OrderType:     domain.OrderTypeBuy,
		OrderCategory: category,
		AskedPrice:    100,
		StopLossPrice: 90,
		TargetPrice:   110,
		TransactionID: 1,
	}
}

func TestRuleForUnknownCategory(t *testing.T) {
	_, err := ruleFor(domain.OrderCategory("ICEBERG"))
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestValidationRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.TradeRequest)
	}{
		{"zero lot size", func(r *domain.TradeRequest) { r.LotSize = 0 }},
		{"negative lot size", func(r *domain.TradeRequest) { r.LotSize = -1 }},
		{"zero asked price", func(r *domain.TradeRequest) { r.AskedPrice = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for category := range categoryRules {
				req := validRequest(category)
				tc.mutate(&req)
				rule, err := ruleFor(category)
				require.NoError(t, err)
				require.ErrorIs(t, rule.validate(req), domain.ErrInvalidOrder)
			}
		})
	}
}

func TestBracketAtMarketValidation(t *testing.T) {
	rule, err := ruleFor(domain.CategoryBracketAtMarket)
	require.NoError(t, err)

	req := validRequest(domain.CategoryBracketAtMarket)
	require.NoError(t, rule.validate(req))

	req.StopLossPrice = -1
	require.ErrorIs(t, rule.validate(req), domain.ErrInvalidOrder)

	req = validRequest(domain.CategoryBracketAtMarket)
	req.TargetPrice = 0
	require.ErrorIs(t, rule.validate(req), domain.ErrInvalidOrder)
}

func TestLimitShouldFill(t *testing.T) {
	req := validRequest(domain.CategoryLimit)

	// Unamended: fills once the market reaches the asked price.
	require.False(t, limitShouldFill(req, 100, 99, true))
	require.True(t, limitShouldFill(req, 100, 100, true))
	require.True(t, limitShouldFill(req, 100, 120, true))

	// Amended below the placement snapshot: fills only at or under the
	// improved price.
	req.AskedPrice = 95
	require.False(t, limitShouldFill(req, 100, 98, true))
	require.True(t, limitShouldFill(req, 100, 95, true))
	require.True(t, limitShouldFill(req, 100, 90, true))
}

func TestBracketAtLimitShouldFill(t *testing.T) {
	rule, err := ruleFor(domain.CategoryBracketAtLimit)
	require.NoError(t, err)

	req := validRequest(domain.CategoryBracketAtLimit)
	require.True(t, rule.shouldFill(req, 0, 99, true))
	require.True(t, rule.shouldFill(req, 0, 100, true))
	require.False(t, rule.shouldFill(req, 0, 101, true))

	require.False(t, rule.shouldFill(req, 0, 99, false))
	require.True(t, rule.shouldFill(req, 0, 100, false))
	require.True(t, rule.shouldFill(req, 0, 101, false))
}
