package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// UserService records the Telegram users the bot talks to.
type UserService struct {
	users domain.UserStore
}

// NewUserService creates a UserService.
func NewUserService(users domain.UserStore) *UserService {
	return &UserService{users: users}
}

// Register creates the user on first contact and refreshes their names on
// every later one.
func (s *UserService) Register(ctx context.Context, id int64, username, firstName, lastName string) (domain.User, error) {
	full := strings.TrimSpace(firstName + " " + lastName)
	u, err := s.users.Upsert(ctx, domain.User{ID: id, Username: username, FullName: full})
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: register %d: %w", id, err)
	}
	return u, nil
}
