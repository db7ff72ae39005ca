package matching

import (
	"github.com/huandu/skiplist"

	"exchange/internal/domain"
)

// bookKey orders resting orders by asked price, with the transaction id as
// tie-breaker so orders at the same price can coexist.
type bookKey struct {
	price float64
	txID  int64
}

func keyFor(resp domain.TradeResponse) bookKey {
	return bookKey{price: resp.Request.AskedPrice, txID: resp.TransactionID}
}

// sideBook is one side of an instrument's order book: a price-ordered set
// of TradeResponse. Buy sides sort ascending by asked price, sell sides
// descending, so the best candidate for a fill is always at the front.
//
// The skiplist is not safe for concurrent use; every operation must happen
// under the instrument's lock held by the engine.
type sideBook struct {
	isBuy bool
	list  *skiplist.SkipList
}

func newSideBook(isBuy bool) *sideBook {
	cmp := func(lhs, rhs any) int {
		k1, _ := lhs.(bookKey)
		k2, _ := rhs.(bookKey)

		if k1.price != k2.price {
			less := k1.price < k2.price
			if !isBuy {
				less = !less
			}
			if less {
				return -1
			}
			return 1
		}
		switch {
		case k1.txID < k2.txID:
			return -1
		case k1.txID > k2.txID:
			return 1
		}
		return 0
	}

	return &sideBook{
		isBuy: isBuy,
		list:  skiplist.New(skiplist.GreaterThanFunc(cmp)),
	}
}

func (b *sideBook) insert(resp domain.TradeResponse) {
	b.list.Set(keyFor(resp), resp)
}

func (b *sideBook) remove(key bookKey) bool {
	return b.list.Remove(key) != nil
}

func (b *sideBook) contains(key bookKey) bool {
	return b.list.Get(key) != nil
}

func (b *sideBook) len() int {
	return b.list.Len()
}

// scan walks the full book best-price-first, invoking visit for each
// resting order and removing every order visit reports as matched. The
// walk never cuts off early: an amended limit or a target-bounded bracket
// can be fillable behind a non-matching order.
func (b *sideBook) scan(visit func(resp domain.TradeResponse) bool) []bookKey {
	var filled []bookKey
	for el := b.list.Front(); el != nil; el = el.Next() {
		resp, _ := el.Value.(domain.TradeResponse)
		if visit(resp) {
			filled = append(filled, el.Key().(bookKey))
		}
	}
	for _, key := range filled {
		b.list.Remove(key)
	}
	return filled
}
