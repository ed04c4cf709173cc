package scryfall

import (
	"context"

	"github.com/zjrosen/cardsmith/internal/card"
)

// Order is the search ordering used when no collector number pins the
// printing.
type Order struct {
	Sorting   string // Scryfall "order" parameter, e.g. "released"
	Ascending bool
}

func (o Order) dir() string {
	if o.Ascending {
		return "asc"
	}
	return "desc"
}

type orderKey struct{}

// WithOrder returns a context whose searches use o.
func WithOrder(ctx context.Context, o Order) context.Context {
	return context.WithValue(ctx, orderKey{}, o)
}

// OrderFrom returns the order set by WithOrder.
func OrderFrom(ctx context.Context) (Order, bool) {
	o, ok := ctx.Value(orderKey{}).(Order)
	return o, ok
}

// cacheKey separates unpinned identities searched under different orders,
// since each order can pick a different printing.
func cacheKey(ctx context.Context, id card.Identity) string {
	o, ok := OrderFrom(ctx)
	if !ok || (id.Set != "" && id.Number != "") {
		return id.Key()
	}
	return id.Key() + "|" + o.Sorting + ":" + o.dir()
}
