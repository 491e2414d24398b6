package models

import "time"

// Dorm identifies a dormitory room on the utility-payment site
type Dorm struct {
	ID   string `json:"id" yaml:"id"`     // room code ("xid" on the site)
	Type string `json:"type" yaml:"type"` // building type discriminator
	Name string `json:"name" yaml:"name"` // display name, e.g. "12-305"
}

// Label returns the name if set, otherwise the room code
func (d Dorm) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Reading is one remaining-balance sample for a dormitory
type Reading struct {
	ID         int       `json:"id"`
	DormID     string    `json:"dorm_id"`
	DormName   string    `json:"dorm_name"`
	Timestamp  time.Time `json:"timestamp"`
	BalanceKWh float64   `json:"balance_kwh"`
}

// Settlement is one row of the historical settlement list
type Settlement struct {
	DormID    string    `json:"dorm_id"`
	SettledAt time.Time `json:"settled_at"`
	KWh       float64   `json:"kwh"`
}
