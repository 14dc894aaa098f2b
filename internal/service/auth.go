package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/repository"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
	// bcrypt rejects longer input.
	maxPasswordBytes = 72
)

// AuthService registers users and exchanges credentials for tokens.
type AuthService struct {
	store   repository.Store
	hasher  auth.PasswordHasher
	tokens  *auth.TokenCodec
	metrics *metrics.Metrics
	log     *logrus.Logger
}

// NewAuthService initializes an auth service.
func NewAuthService(store repository.Store, hasher auth.PasswordHasher, tokens *auth.TokenCodec, m *metrics.Metrics, log *logrus.Logger) *AuthService {
	return &AuthService{store: store, hasher: hasher, tokens: tokens, metrics: m, log: log}
}

// Register creates a new USER with a hashed password
func (s *AuthService) Register(ctx context.Context, username, password string) (models.UserView, error) {
	if n := utf8.RuneCountInString(username); blank(username) || n < minUsernameLen || n > maxUsernameLen {
		return models.UserView{}, errs.BadRequest("username must be between %d and %d characters", minUsernameLen, maxUsernameLen)
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return models.UserView{}, errs.BadRequest("password must be at least %d characters", minPasswordLen)
	}

	user, err := s.createUser(ctx, username, password, models.RoleUser)
	if err != nil {
		return models.UserView{}, err
	}
	s.metrics.UsersRegistered.Inc()
	s.log.Infof("User registered: %s", user.Username)
	return user.View(), nil
}

func (s *AuthService) createUser(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	if len(password) > maxPasswordBytes {
		return nil, errs.BadRequest("password must be at most %d bytes", maxPasswordBytes)
	}
	exists, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, storeErr(s.log, "register", err)
	}
	if exists {
		return nil, errs.Conflict("username %s already exists", username)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, errs.Internal(err, "failed to hash password")
	}

	user := &models.User{Username: username, PasswordHash: hash, Role: role}
	if err := s.store.SaveUser(ctx, user); err != nil {
		if isDuplicate(err) {
			return nil, errs.Conflict("username %s already exists", username)
		}
		return nil, storeErr(s.log, "register", err)
	}
	return user, nil
}

// Verify checks credentials and returns the matching user.
func (s *AuthService) Verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, storeErr(s.log, "login", err)
	}
	if user == nil {
		return nil, errs.Unauthorized("invalid username or password")
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.log.WithError(err).WithField("user_id", user.ID).Warn("Stored password hash is unusable")
		}
		return nil, errs.Unauthorized("invalid username or password")
	}
	return user, nil
}

// Login authenticates a user and returns a signed token
func (s *AuthService) Login(ctx context.Context, username, password string) (models.LoginResult, error) {
	user, err := s.Verify(ctx, username, password)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if errs.KindOf(err) == errs.KindInternal {
			outcome = metrics.OutcomeError
		}
		s.metrics.Logins.WithLabelValues(outcome).Inc()
		return models.LoginResult{}, err
	}

	token, exp, err := s.tokens.Issue(user.Username, []models.Role{user.Role})
	if err != nil {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return models.LoginResult{}, errs.Internal(err, "failed to generate token")
	}

	s.metrics.Logins.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Infof("User logged in: %s", user.Username)
	return models.LoginResult{Token: token, ExpiresAt: exp, Username: user.Username, Role: user.Role}, nil
}

// EnsureAdmin creates an ADMIN with the given credentials unless the
// username is already taken.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.createUser(ctx, username, password, models.RoleAdmin)
	if errs.KindOf(err) == errs.KindConflict {
		existing, ferr := s.store.FindUserByUsername(ctx, username)
		if ferr != nil {
			return storeErr(s.log, "ensure admin", ferr)
		}
		if existing != nil && existing.Role != models.RoleAdmin {
			s.log.WithField("username", username).Warnf("Bootstrap admin %s exists with role %s; no admin was created", username, existing.Role)
		}
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Infof("Bootstrap admin created: %s", username)
	return nil
}
