package model

import "time"

// CapitalState tracks the deployable capital pool for one tenant.
type CapitalState struct {
	TotalCapital float64   `json:"total_capital"`
	Available    float64   `json:"available"`
	UpdatedAt    time.Time `json:"updated_at"`
}
