package moderation

import (
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
)

type Role string

const (
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// Actor is the identity the caller's auth layer vouches for. It is trusted as given.
type Actor struct {
	ID    int
	Email string
	Roles []Role
}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) NormalizedEmail() string {
	return utils.NormalizeEmail(a.Email)
}

func requireIdentity(actor Actor) error {
	if actor.NormalizedEmail() == "" {
		return oops.Kinded(oops.KindUnauthorized, nil, "no authenticated actor")
	}
	return nil
}
