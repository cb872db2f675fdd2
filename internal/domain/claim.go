package domain

import "time"

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ClaimStatus) Terminal() bool { return s == ClaimApproved || s == ClaimRejected }

// ValidOutcome reports whether s is an acceptable decide() outcome.
func ValidOutcome(s ClaimStatus) bool { return s == ClaimApproved || s == ClaimRejected }

type Claim struct {
	ID         int64
	BusinessID int64
	UserID     int64
	Status     ClaimStatus
	ProofURL   string
	CreatedAt  time.Time
}

func NewClaim(businessID, userID int64, proofURL string) Claim {
	return Claim{
		BusinessID: businessID,
		UserID:     userID,
		Status:     ClaimPending,
		ProofURL:   proofURL,
		CreatedAt:  time.Now().UTC(),
	}
}
