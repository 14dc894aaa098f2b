package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/repository"
)

// UserService covers the profile and user administration operations.
type UserService struct {
	store repository.Store
	log   *logrus.Logger
}

// NewUserService initializes a user service.
func NewUserService(store repository.Store, log *logrus.Logger) *UserService {
	return &UserService{store: store, log: log}
}

// Me returns the profile of the authenticated user.
func (s *UserService) Me(ctx context.Context, userID int64) (models.UserView, error) {
	return s.Get(ctx, userID)
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID int64) (models.UserView, error) {
	u, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return models.UserView{}, storeErr(s.log, "get user", err)
	}
	if u == nil {
		return models.UserView{}, errs.NotFound("user not found by id %d", userID)
	}
	return u.View(), nil
}

// List returns all users.
func (s *UserService) List(ctx context.Context) ([]models.UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeErr(s.log, "list users", err)
	}
	out := make([]models.UserView, 0, len(users))
	for _, u := range users {
		out = append(out, u.View())
	}
	return out, nil
}

// UpdateRole changes the role of a user.
func (s *UserService) UpdateRole(ctx context.Context, userID int64, role string) (models.UserView, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return models.UserView{}, errs.BadRequest("unknown role %q", role)
	}

	var user *models.User
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		user, err = tx.FindUserByID(ctx, userID)
		if err != nil {
			return storeErr(s.log, "update role", err)
		}
		if user == nil {
			return errs.NotFound("user not found by id %d", userID)
		}
		user.Role = r
		if err := tx.SaveUser(ctx, user); err != nil {
			return storeErr(s.log, "update role", err)
		}
		return nil
	})
	if err != nil {
		return models.UserView{}, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "role": r}).Info("User role changed")
	return user.View(), nil
}

// Delete removes a user and all of its cards.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.FindUserByID(ctx, userID)
		if err != nil {
			return storeErr(s.log, "delete user", err)
		}
		if u == nil {
			return errs.NotFound("user not found by id %d", userID)
		}
		if err := tx.DeleteUser(ctx, userID); err != nil {
			return storeErr(s.log, "delete user", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("User deleted")
	return nil
}
