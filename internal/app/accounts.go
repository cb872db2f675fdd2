package app

import (
	"context"

	"tchouf/internal/adapters/observability"
	"tchouf/internal/domain"
)

// AccountService resolves an external identity (uid) to a User row,
// creating it on first sign-in. No credential verification happens
// here; the uid arrives already authenticated.
type AccountService struct {
	store domain.Store
}

func NewAccountService(store domain.Store) *AccountService {
	return &AccountService{store: store}
}

func (s *AccountService) Sync(ctx context.Context, uid, email, displayName, photoURL string) (domain.User, error) {
	u, err := s.store.GetUserByUID(ctx, uid)
	if isNotFound(err) {
		created, cerr := s.store.CreateUser(ctx, domain.NewUser(uid, email, displayName, photoURL))
		observability.ObserveStore("user", "create", resultLabel(cerr))
		return created, cerr
	}
	if err != nil {
		return domain.User{}, err
	}

	// Refresh mutable profile fields from the identity provider.
	if u.DisplayName != displayName || u.PhotoURL != photoURL {
		u.DisplayName = displayName
		u.PhotoURL = photoURL
		return s.store.UpdateUser(ctx, u)
	}
	return u, nil
}

func (s *AccountService) Get(ctx context.Context, id int64) (domain.User, error) {
	return s.store.GetUser(ctx, id)
}
