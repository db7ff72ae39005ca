package matching

import (
	"fmt"

	"exchange/internal/domain"
)

// categoryRule holds the per-category order handling behavior: intake
// validation, the fill predicate evaluated against the crossing price, and
// an optional post-placement hook.
type categoryRule struct {
	validate    func(domain.TradeRequest) error
	shouldFill  func(req domain.TradeRequest, placedAt, price float64, isBuy bool) bool
	postProcess func(e *Engine, resp domain.TradeResponse)
}

var categoryRules = map[domain.OrderCategory]categoryRule{
	domain.CategoryMarket: {
		validate: func(req domain.TradeRequest) error {
			return firstError(validateLotSize(req), validateAskedPrice(req))
		},
		shouldFill: func(domain.TradeRequest, float64, float64, bool) bool {
			return true
		},
	},
	domain.CategoryLimit: {
		validate: func(req domain.TradeRequest) error {
			return firstError(validateLotSize(req), validateAskedPrice(req))
		},
		shouldFill:  limitShouldFill,
		postProcess: placeByOrderType,
	},
	domain.CategoryBracketAtMarket: {
		validate: func(req domain.TradeRequest) error {
			return firstError(
				validateLotSize(req),
				validateAskedPrice(req),
				validateStopLossPrice(req),
				validateTargetPrice(req),
			)
		},
		shouldFill: func(req domain.TradeRequest, _, price float64, isBuy bool) bool {
			if isBuy {
				return req.AskedPrice >= price && (req.TargetPrice == 0 || price >= req.TargetPrice)
			}
			return req.StopLossPrice <= price && (req.TargetPrice == 0 || price >= req.TargetPrice)
		},
	},
	domain.CategoryBracketAtLimit: {
		validate: func(req domain.TradeRequest) error {
			return firstError(validateLotSize(req), validateAskedPrice(req))
		},
		shouldFill: func(req domain.TradeRequest, _, price float64, isBuy bool) bool {
			if isBuy {
				return req.AskedPrice >= price
			}
			return req.AskedPrice <= price
		},
	},
	domain.CategoryStopLoss: {
		validate: func(req domain.TradeRequest) error {
			return firstError(validateLotSize(req), validateAskedPrice(req))
		},
		shouldFill: func(req domain.TradeRequest, _, price float64, _ bool) bool {
			return req.StopLossPrice <= price
		},
		postProcess: func(e *Engine, resp domain.TradeResponse) {
			e.placeSellOrder(resp)
		},
	},
}

// limitShouldFill implements the price-improvement branch: an order whose
// asked price was amended below its placement snapshot fills only at or
// under the improved price; an unamended order fills once the market
// reaches its asked price.
func limitShouldFill(req domain.TradeRequest, placedAt, price float64, _ bool) bool {
	if req.AskedPrice < placedAt {
		return price <= req.AskedPrice
	}
	return price >= req.AskedPrice
}

// placeByOrderType re-routes the placement through the order's own BUY/SELL
// direction. Placement is idempotent per transaction id, so re-routing an
// already-resting order is a no-op.
func placeByOrderType(e *Engine, resp domain.TradeResponse) {
	switch resp.Request.OrderType {
	case domain.OrderTypeSell:
		e.placeSellOrder(resp)
	default:
		e.placeBuyOrder(resp)
	}
}

func ruleFor(category domain.OrderCategory) (categoryRule, error) {
	rule, ok := categoryRules[category]
	if !ok {
		return categoryRule{}, fmt.Errorf("%w: unknown order category %q", domain.ErrInvalidOrder, category)
	}
	return rule, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func validateLotSize(req domain.TradeRequest) error {
	if req.LotSize <= 0 {
		return fmt.Errorf("%w: lot size must be greater than 0", domain.ErrInvalidOrder)
	}
	return nil
}

func validateAskedPrice(req domain.TradeRequest) error {
	if req.AskedPrice <= 0 {
		return fmt.Errorf("%w: asked price must be greater than 0", domain.ErrInvalidOrder)
	}
	return nil
}

func validateStopLossPrice(req domain.TradeRequest) error {
	if req.StopLossPrice < 0 {
		return fmt.Errorf("%w: stop loss price must not be negative", domain.ErrInvalidOrder)
	}
	return nil
}

func validateTargetPrice(req domain.TradeRequest) error {
	if req.TargetPrice <= 0 {
		return fmt.Errorf("%w: target price must be greater than 0", domain.ErrInvalidOrder)
	}
	return nil
}
