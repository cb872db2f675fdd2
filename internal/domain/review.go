package domain

import "time"

type Review struct {
	ID         int64
	BusinessID int64
	UserID     int64
	Rating     int // 1..5
	Comment    string
	PhotoURL   string
	CreatedAt  time.Time
}

func NewReview(businessID, userID int64, rating int, comment, photoURL string) Review {
	return Review{
		BusinessID: businessID,
		UserID:     userID,
		Rating:     rating,
		Comment:    comment,
		PhotoURL:   photoURL,
		CreatedAt:  time.Now().UTC(),
	}
}

// ValidRating reports whether r is inside the allowed star range.
func ValidRating(r int) bool { return r >= 1 && r <= 5 }
