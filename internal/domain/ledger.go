package domain

import (
	"errors"
	"time"
)

var (
	ErrNegativeQuantity = errors.New("quantities must not be negative")
	ErrNegativeEnding   = errors.New("ending quantity would be negative")
)

// NewUsageRecord opens a ledger row with nothing used or delivered yet.
func NewUsageRecord(item ItemRef, date time.Time, beginning int, at time.Time) UsageRecord {
	return UsageRecord{
		Item:      item,
		Date:      date,
		Beginning: beginning,
		Ending:    beginning,
		UpdatedAt: at,
	}
}

// Apply returns the record with delta added. Without an explicit ending the
// ending is recomputed as beginning + delivered - used and must stay >= 0.
func (u UsageRecord) Apply(delta UsageDelta) (UsageRecord, error) {
	if delta.Used < 0 || delta.Delivered < 0 {
		return u, ErrNegativeQuantity
	}

	next := u
	next.Used += delta.Used
	next.Delivered += delta.Delivered

	if delta.Ending != nil {
		if *delta.Ending < 0 {
			return u, ErrNegativeQuantity
		}
		next.Ending = *delta.Ending
		return next, nil
	}

	next.Ending = next.Beginning + next.Delivered - next.Used
	if next.Ending < 0 {
		return u, ErrNegativeEnding
	}
	return next, nil
}

// Balanced reports whether the record satisfies the conservation equation.
func (u UsageRecord) Balanced() bool {
	return u.Ending == u.Beginning+u.Delivered-u.Used
}

func (d Delivery) Used() int {
	return d.Beginning + d.Delivered - d.Ending
}

func (d Delivery) State() DeliveryState {
	switch {
	case d.Status == DeliveryConfirmed:
		return StateConfirmed
	case d.EditedAt != nil:
		return StateEdited
	default:
		return StateSeeded
	}
}

// Validate checks the quantities staff may submit for a delivery row.
func (d Delivery) Validate() error {
	if d.Beginning < 0 || d.Delivered < 0 || d.Ending < 0 {
		return ErrNegativeQuantity
	}
	if d.Used() < 0 {
		return ErrNegativeEnding
	}
	return nil
}

// WriteBack is the ledger delta produced by confirming the delivery. Checkout
// already records product sales as used, so a product only adds what was
// delivered and its ending follows from the ledger. A material takes the
// counted used and ending.
func (d Delivery) WriteBack() UsageDelta {
	if d.Item.Kind == KindProduct {
		return UsageDelta{Delivered: d.Delivered}
	}
	ending := d.Ending
	return UsageDelta{
		Used:      d.Used(),
		Delivered: d.Delivered,
		Ending:    &ending,
	}
}

// ConfirmedLiveQuantity is the item's live quantity once the delivery is
// confirmed. Sales already decremented products during the day, so a product
// only gains what was delivered; a material is set to the counted ending.
func (d Delivery) ConfirmedLiveQuantity(current int) int {
	if d.Item.Kind == KindProduct {
		return current + d.Delivered
	}
	return d.Ending
}

func (d Delivery) Row() DeliveryRow {
	return DeliveryRow{Delivery: d, Used: d.Used(), State: d.State()}
}

// NewSeedDelivery opens the day's delivery row for an item.
func NewSeedDelivery(item ItemRef, date time.Time, beginning int, at time.Time) Delivery {
	return Delivery{
		Date:      date,
		Item:      item,
		Beginning: beginning,
		Ending:    beginning,
		Status:    DeliveryPending,
		CreatedAt: at,
	}
}
