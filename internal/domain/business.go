package domain

import "time"

type Business struct {
	ID          int64
	Name        string
	Category    string
	Description string
	Address     string
	City        string
	Phone       string
	Website     string
	Photos      []string
	CreatedBy   int64  // user who created the listing
	ClaimedBy   *int64 // owner once a claim is approved
	Verified    bool
	AvgRating   float64 // arithmetic mean of current ratings, 0 when none
	ReviewCount int
	CreatedAt   time.Time
}

type BusinessInput struct {
	Name        string
	Category    string
	Description string
	Address     string
	City        string
	Phone       string
	Website     string
	Photos      []string
	CreatedBy   int64
}

// NewBusiness builds an unverified listing with zeroed aggregates.
// Invariant: Verified implies ClaimedBy != nil, so both start unset.
func NewBusiness(in BusinessInput) Business {
	return Business{
		Name:        in.Name,
		Category:    in.Category,
		Description: in.Description,
		Address:     in.Address,
		City:        in.City,
		Phone:       in.Phone,
		Website:     in.Website,
		Photos:      append([]string(nil), in.Photos...),
		CreatedBy:   in.CreatedBy,
		ClaimedBy:   nil,
		Verified:    false,
		AvgRating:   0,
		ReviewCount: 0,
		CreatedAt:   time.Now().UTC(),
	}
}
