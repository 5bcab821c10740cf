package bridge

import (
	"fmt"
)

// Action names the bridge call. The values are the strings host script sends.
type Action string

const (
	ActionInitGTM            Action = "initGTM"
	ActionExitGTM            Action = "exitGTM"
	ActionDispatch           Action = "dispatch"
	ActionTrackEvent         Action = "trackEvent"
	ActionPushEvent          Action = "pushEvent"
	ActionTrackPage          Action = "trackPage"
	ActionPushImpression     Action = "pushImpression"
	ActionPushProductClick   Action = "pushProductClick"
	ActionPushDetailView     Action = "pushDetailView"
	ActionPushAddToCart      Action = "pushAddToCart"
	ActionPushRemoveFromCart Action = "pushRemoveFromCart"
	ActionPushCheckout       Action = "pushCheckout"
	ActionPushTransaction    Action = "pushTransaction"
)

// aliases maps alternate spellings sent by older script clients.
var aliases = map[string]Action{
	"pushImpressions": ActionPushImpression,
}

// ParseAction resolves a wire action name.
func ParseAction(name string) (Action, bool) {
	if a, ok := aliases[name]; ok {
		return a, true
	}
	a := Action(name)
	switch a {
	case ActionInitGTM, ActionExitGTM, ActionDispatch, ActionTrackEvent, ActionPushEvent,
		ActionTrackPage, ActionPushImpression, ActionPushProductClick, ActionPushDetailView,
		ActionPushAddToCart, ActionPushRemoveFromCart, ActionPushCheckout, ActionPushTransaction:
		return a, true
	}
	return "", false
}

// requiresSession reports whether the action is refused before initialisation.
func (a Action) requiresSession() bool {
	return a != ActionInitGTM && a != ActionExitGTM
}

// Request is one typed bridge call. The set of implementations is closed.
type Request interface {
	Action() Action
	request()
}

type (
	InitGTM struct {
		ContainerID     string
		IntervalSeconds int
	}
	ExitGTM    struct{}
	Dispatch   struct{}
	TrackEvent struct {
		Category    string
		EventAction string
		Label       string
		Value       int
	}
	PushEvent struct {
		Data map[string]any
	}
	TrackPage struct {
		URL string
	}
	PushImpression struct {
		Item         Product
		List         string
		CurrencyCode string
	}
	PushProductClick struct {
		Product Product
		List    string
	}
	PushDetailView struct {
		Product Product
	}
	PushAddToCart struct {
		Product      Product
		CurrencyCode string
	}
	PushRemoveFromCart struct {
		Product Product
	}
	PushCheckout struct {
		Step       int
		Products   []Product
		Option     string
		ScreenName string
	}
	PushTransaction struct {
		Transaction Transaction
		Items       []Product
	}
)

func (InitGTM) Action() Action            { return ActionInitGTM }
func (ExitGTM) Action() Action            { return ActionExitGTM }
func (Dispatch) Action() Action           { return ActionDispatch }
func (TrackEvent) Action() Action         { return ActionTrackEvent }
func (PushEvent) Action() Action          { return ActionPushEvent }
func (TrackPage) Action() Action          { return ActionTrackPage }
func (PushImpression) Action() Action     { return ActionPushImpression }
func (PushProductClick) Action() Action   { return ActionPushProductClick }
func (PushDetailView) Action() Action     { return ActionPushDetailView }
func (PushAddToCart) Action() Action      { return ActionPushAddToCart }
func (PushRemoveFromCart) Action() Action { return ActionPushRemoveFromCart }
func (PushCheckout) Action() Action       { return ActionPushCheckout }
func (PushTransaction) Action() Action    { return ActionPushTransaction }

func (InitGTM) request()            {}
func (ExitGTM) request()            {}
func (Dispatch) request()           {}
func (TrackEvent) request()         {}
func (PushEvent) request()          {}
func (TrackPage) request()          {}
func (PushImpression) request()     {}
func (PushProductClick) request()   {}
func (PushDetailView) request()     {}
func (PushAddToCart) request()      {}
func (PushRemoveFromCart) request() {}
func (PushCheckout) request()       {}
func (PushTransaction) request()    {}

// Product is the item shape shared by every e-commerce action.
type Product struct {
	ID       string
	Name     string
	Price    string
	Quantity string
}

// Transaction carries the purchase actionField.
type Transaction struct {
	ID          string
	Affiliation string
	Revenue     string
	Tax         string
	Shipping    string
}

func productFrom(o Object) (Product, error) {
	var (
		p   Product
		err error
	)
	if p.Name, err = o.String("name"); err != nil {
		return p, err
	}
	if p.ID, err = o.String("id"); err != nil {
		return p, err
	}
	if p.Price, err = o.String("price"); err != nil {
		return p, err
	}
	p.Quantity = o.OptString("quantity", "1")
	return p, nil
}

func productsFrom(list []Object) ([]Product, error) {
	out := make([]Product, 0, len(list))
	for i, o := range list {
		p, err := productFrom(o)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func transactionFrom(o Object) (Transaction, error) {
	var (
		t   Transaction
		err error
	)
	if t.ID, err = o.String("transactionId"); err != nil {
		return t, err
	}
	if t.Revenue, err = o.String("transactionTotal"); err != nil {
		return t, err
	}
	t.Affiliation = o.OptString("transactionAffiliation", "")
	t.Tax = o.OptString("transactionTax", "")
	t.Shipping = o.OptString("transactionShipping", "")
	return t, nil
}

// Decode converts a wire call into its typed request.
func Decode(action string, args Args) (Request, error) {
	a, ok := ParseAction(action)
	if !ok {
		return nil, fmt.Errorf("invalid action: %s", action)
	}
	return decode(a, args)
}

func decode(a Action, args Args) (Request, error) {
	switch a {
	case ActionInitGTM:
		id, err := args.String(0)
		if err != nil {
			return nil, err
		}
		interval, err := args.Int(1)
		if err != nil {
			return nil, err
		}
		return InitGTM{ContainerID: id, IntervalSeconds: interval}, nil

	case ActionExitGTM:
		return ExitGTM{}, nil

	case ActionDispatch:
		return Dispatch{}, nil

	case ActionTrackEvent:
		var r TrackEvent
		var err error
		if r.Category, err = args.String(0); err != nil {
			return nil, err
		}
		if r.EventAction, err = args.String(1); err != nil {
			return nil, err
		}
		if r.Label, err = args.String(2); err != nil {
			return nil, err
		}
		if v, err := args.Int(3); err == nil {
			r.Value = v
		}
		return r, nil

	case ActionPushEvent:
		o, err := args.Object(0)
		if err != nil {
			return nil, err
		}
		return PushEvent{Data: o.Flatten()}, nil

	case ActionTrackPage:
		url, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return TrackPage{URL: url}, nil

	case ActionPushImpression:
		o, err := args.Object(0)
		if err != nil {
			return nil, err
		}
		item, err := productFrom(o)
		if err != nil {
			return nil, err
		}
		list, err := args.String(1)
		if err != nil {
			return nil, err
		}
		currency, err := args.String(2)
		if err != nil {
			return nil, err
		}
		return PushImpression{Item: item, List: list, CurrencyCode: currency}, nil

	case ActionPushProductClick:
		p, err := productArg(args, 0)
		if err != nil {
			return nil, err
		}
		list, err := args.String(1)
		if err != nil {
			return nil, err
		}
		return PushProductClick{Product: p, List: list}, nil

	case ActionPushDetailView:
		p, err := productArg(args, 0)
		if err != nil {
			return nil, err
		}
		return PushDetailView{Product: p}, nil

	case ActionPushAddToCart:
		p, err := productArg(args, 0)
		if err != nil {
			return nil, err
		}
		currency, err := args.String(1)
		if err != nil {
			return nil, err
		}
		return PushAddToCart{Product: p, CurrencyCode: currency}, nil

	case ActionPushRemoveFromCart:
		p, err := productArg(args, 0)
		if err != nil {
			return nil, err
		}
		return PushRemoveFromCart{Product: p}, nil

	case ActionPushCheckout:
		step, err := args.Int(0)
		if err != nil {
			return nil, err
		}
		list, err := args.ObjectArray(1)
		if err != nil {
			return nil, err
		}
		products, err := productsFrom(list)
		if err != nil {
			return nil, err
		}
		screen, err := args.String(3)
		if err != nil {
			return nil, err
		}
		return PushCheckout{Step: step, Products: products, Option: args.OptString(2), ScreenName: screen}, nil

	case ActionPushTransaction:
		o, err := args.Object(0)
		if err != nil {
			return nil, err
		}
		t, err := transactionFrom(o)
		if err != nil {
			return nil, err
		}
		list, err := args.ObjectArray(1)
		if err != nil {
			return nil, err
		}
		items, err := productsFrom(list)
		if err != nil {
			return nil, err
		}
		return PushTransaction{Transaction: t, Items: items}, nil
	}
	return nil, fmt.Errorf("invalid action: %s", a)
}

func productArg(args Args, i int) (Product, error) {
	o, err := args.Object(i)
	if err != nil {
		return Product{}, err
	}
	return productFrom(o)
}
