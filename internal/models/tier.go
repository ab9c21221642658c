package models

import "github.com/uptrace/bun"

// Tier is a priced category of concert admission with its own capacity
// counter. sold_tickets only ever increases, via confirmed order creation;
// scanning consumes admission, not inventory.
type Tier struct {
	bun.BaseModel `bun:"table:tiers"`

	Name         string  `json:"tier" bun:"name,pk"`
	Price        float64 `json:"price" bun:"price"`
	TotalTickets int     `json:"total" bun:"total_tickets"`
	SoldTickets  int     `json:"sold" bun:"sold_tickets"`
}

// Available is derived, never stored.
func (t *Tier) Available() int {
	if avail := t.TotalTickets - t.SoldTickets; avail > 0 {
		return avail
	}
	return 0
}

type TierSummary struct {
	Tier      string  `json:"tier"`
	Price     float64 `json:"price"`
	Total     int     `json:"total"`
	Sold      int     `json:"sold"`
	Available int     `json:"available"`
}

// SeedRequest provisions inventory for an event: numbered tickets 1..N and
// the tier capacity table. Existing records are left untouched.
type SeedRequest struct {
	TicketCount int        `json:"ticket_count"`
	Tiers       []SeedTier `json:"tiers" binding:"dive"`
}

type SeedTier struct {
	Name  string  `json:"name" binding:"required"`
	Price float64 `json:"price" binding:"required,gt=0"`
	Total int     `json:"total" binding:"required,gt=0"`
}
