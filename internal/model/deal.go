package model

import "time"

// Deal identifies one company under evaluation. Facts, reviews, and alert
// resolutions all hang off a deal.
type Deal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
