package bridge

import (
	"encoding/json"

	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

// Data-layer event names and keys pushed by the e-commerce actions.
const (
	eventInteraction       = "interaction"
	eventContentView       = "content-view"
	eventProductImpression = "productImpression"
	eventProductClick      = "productClick"
	eventDetailView        = "detailView"
	eventAddToCart         = "addToCart"
	eventRemoveFromCart    = "removeFromCart"
	eventCheckout          = "checkout"
	eventOrderPlaced       = "orderPlaced"

	keyEcommerce   = "ecommerce"
	keyValue       = "value"
	keyContentName = "content-name"

	transactionContentName = "Payment Response"
)

func (p Product) toMap() tm.Map {
	return tm.MapOf(
		"name", p.Name,
		"id", p.ID,
		"price", p.Price,
		"quantity", p.Quantity,
	)
}

func (p Product) toJSON() string {
	b, _ := json.Marshal(p.toMap())
	return string(b)
}

func productList(ps []Product) []any {
	out := make([]any, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.toMap())
	}
	return out
}

// payload returns the event name and body pushed for r, or ok=false for
// requests that push nothing.
func payload(r Request) (event string, body tm.Map, ok bool) {
	switch r := r.(type) {
	case TrackEvent:
		return eventInteraction, tm.MapOf(
			"target", r.Category,
			"action", r.EventAction,
			"target-properties", r.Label,
			keyValue, r.Value,
		), true

	case TrackPage:
		return eventContentView, tm.MapOf(keyContentName, r.URL), true

	case PushImpression:
		item := tm.MapOf(
			"name", r.Item.Name,
			"id", r.Item.ID,
			"price", r.Item.Price,
			"list", r.List,
		)
		return eventProductImpression, tm.MapOf(
			keyEcommerce, tm.MapOf(
				"currencyCode", r.CurrencyCode,
				"impressions", tm.ListOf(item),
			),
			keyContentName, r.Item.Name,
		), true

	case PushProductClick:
		return eventProductClick, tm.MapOf(
			keyValue, truncatedInt(r.Product.Price),
			keyEcommerce, tm.MapOf(
				"click", tm.MapOf(
					"actionField", tm.MapOf("list", r.List),
					"products", tm.ListOf(r.Product.toMap()),
				),
			),
		), true

	case PushDetailView:
		return eventDetailView, tm.MapOf(
			keyEcommerce, tm.MapOf(
				"detail", tm.MapOf("products", tm.ListOf(r.Product.toMap())),
			),
			keyContentName, r.Product.Name,
		), true

	case PushAddToCart:
		return eventAddToCart, tm.MapOf(
			keyEcommerce, tm.MapOf(
				"currencyCode", r.CurrencyCode,
				"add", tm.MapOf("products", tm.ListOf(r.Product.toMap())),
			),
			keyValue, truncatedInt(r.Product.Price),
		), true

	case PushRemoveFromCart:
		return eventRemoveFromCart, tm.MapOf(
			keyEcommerce, tm.MapOf(
				"remove", tm.MapOf("products", tm.ListOf(r.Product.toMap())),
			),
			keyValue, truncatedInt(r.Product.Price),
		), true

	case PushCheckout:
		actionField := tm.MapOf("step", r.Step)
		if r.Option != "" {
			actionField["option"] = r.Option
		}
		return eventCheckout, tm.MapOf(
			keyContentName, r.ScreenName,
			keyEcommerce, tm.MapOf(
				"checkout", tm.MapOf(
					"actionField", actionField,
					"products", productList(r.Products),
				),
			),
		), true

	case PushTransaction:
		t := r.Transaction
		return eventOrderPlaced, tm.MapOf(
			keyContentName, transactionContentName,
			keyEcommerce, tm.MapOf(
				"purchase", tm.MapOf(
					"actionField", tm.MapOf(
						"id", t.ID,
						"affiliation", t.Affiliation,
						"revenue", t.Revenue,
						"tax", t.Tax,
						"shipping", t.Shipping,
					),
					"products", productList(r.Items),
				),
			),
		), true
	}
	return "", nil, false
}

// clearedKeys lists the transient keys removed after r is pushed so they do
// not leak into the next event.
func clearedKeys(r Request) []string {
	switch r.(type) {
	case TrackPage:
		return []string{tm.EventKey, keyContentName}
	case PushProductClick:
		return []string{keyValue, keyEcommerce}
	case PushImpression, PushDetailView, PushAddToCart, PushRemoveFromCart, PushCheckout, PushTransaction:
		return []string{keyEcommerce}
	}
	return nil
}
