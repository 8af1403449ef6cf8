package edgeauth

import (
	"context"

	"github.com/MrEthical07/edgeauth/internal/flows"
)

// userLookup adapts a UserProvider to the flow-level lookup.
type userLookup struct {
	provider UserProvider
}

func (u userLookup) GetUserByID(ctx context.Context, id string) (flows.User, error) {
	rec, err := u.provider.GetUserByID(ctx, id)
	if err != nil {
		return flows.User{}, err
	}
	return flowUser(rec), nil
}

func (u userLookup) GetUserByEmail(ctx context.Context, email string) (flows.User, error) {
	rec, err := u.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return flows.User{}, err
	}
	return flowUser(rec), nil
}

func flowUser(rec UserRecord) flows.User {
	return flows.User{
		ID:           rec.ID,
		Email:        rec.Email,
		Name:         rec.Name,
		Image:        rec.Image,
		Role:         rec.Role,
		PasswordHash: rec.PasswordHash,
	}
}

func publicFromFlow(u flows.User) PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name, Image: u.Image}
}
