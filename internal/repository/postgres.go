package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/oindividum/bankcards-service/internal/models"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db *sql.DB
	q  querier
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

// InTx runs fn in a READ COMMITTED transaction. Row locks taken with
// LockCardsByNumber serialize concurrent writers on the same card.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) (err error) {
	if r.db == nil {
		return fn(ctx, r)
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()
	return fn(ctx, &Repository{q: tx})
}

// translate maps constraint violations onto store sentinels.
func translate(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", what, ErrDuplicate)
		case "23514": // check_violation
			return fmt.Errorf("%s: %w", what, ErrNegativeBalance)
		case "22003": // numeric_value_out_of_range
			return fmt.Errorf("%s: %w", what, ErrBalanceOverflow)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

const userColumns = `id, username, password_hash, role, COALESCE(card_holder_name, ''), created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CardHolderName, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE ` + where
	u, err := scanUser(r.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// FindUserByID retrieves a user by id
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findUser(ctx, `id = $1`, id)
}

// FindUserByUsername retrieves a user by username
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, `username = $1`, username)
}

func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bank.users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+userColumns+` FROM bank.users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SaveUser creates or updates a user
func (r *Repository) SaveUser(ctx context.Context, u *models.User) error {
	if u.ID == 0 {
		query := `
		INSERT INTO bank.users (username, password_hash, role, card_holder_name, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), CURRENT_TIMESTAMP)
		RETURNING id, created_at`
		err := r.q.QueryRowContext(ctx, query, u.Username, u.PasswordHash, string(u.Role), u.CardHolderName).
			Scan(&u.ID, &u.CreatedAt)
		if err != nil {
			return translate(err, "failed to create user")
		}
		return nil
	}

	query := `
		UPDATE bank.users
		SET username = $2, password_hash = $3, role = $4, card_holder_name = NULLIF($5, '')
		WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, u.ID, u.Username, u.PasswordHash, string(u.Role), u.CardHolderName); err != nil {
		return translate(err, "failed to update user")
	}
	return nil
}

// DeleteUser removes a user; cards go with it via ON DELETE CASCADE.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM bank.users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

const cardColumns = `id, card_number, cardholder_name, expiry_date, status, balance, user_id, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (*models.Card, error) {
	c := &models.Card{}
	var status string
	err := row.Scan(&c.ID, &c.Number, &c.HolderName, &c.ExpiryDate, &status, &c.Balance, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = models.CardStatus(status)
	c.ExpiryDate = models.Date(c.ExpiryDate)
	return c, nil
}

func (r *Repository) findCard(ctx context.Context, where string, args ...any) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE ` + where
	c, err := scanCard(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return c, nil
}

func (r *Repository) queryCards(ctx context.Context, query string, args ...any) ([]models.Card, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func (r *Repository) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	return r.findCard(ctx, `id = $1`, id)
}

func (r *Repository) FindCardByIDAndOwner(ctx context.Context, id, userID int64) (*models.Card, error) {
	return r.findCard(ctx, `id = $1 AND user_id = $2`, id, userID)
}

func (r *Repository) FindCardByNumber(ctx context.Context, encrypted string) (*models.Card, error) {
	return r.findCard(ctx, `card_number = $1`, encrypted)
}

func (r *Repository) LockCardsByNumber(ctx context.Context, encrypted ...string) ([]models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE card_number = ANY($1) ORDER BY id FOR UPDATE`
	return r.queryCards(ctx, query, pq.Array(encrypted))
}

func (r *Repository) pageCards(ctx context.Context, req models.PageRequest, where string, args ...any) (models.Page[models.Card], error) {
	req = req.Normalize()
	page := models.Page[models.Card]{Page: req.Page, Size: req.Size}

	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards WHERE `+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("failed to count cards: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM bank.cards WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`, cardColumns, where, n+1, n+2)
	cards, err := r.queryCards(ctx, query, append(args, req.Size, req.Offset())...)
	if err != nil {
		return page, err
	}
	page.Items = cards
	if page.Items == nil {
		page.Items = []models.Card{}
	}
	return page, nil
}

func (r *Repository) FindCardsByOwner(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.Card], error) {
	return r.pageCards(ctx, page, `user_id = $1`, userID)
}

func (r *Repository) ListCards(ctx context.Context, page models.PageRequest) (models.Page[models.Card], error) {
	return r.pageCards(ctx, page, `TRUE`)
}

func (r *Repository) ListActiveCardsExpiringBefore(ctx context.Context, day time.Time) ([]models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE status = $1 AND expiry_date < $2 ORDER BY id`
	return r.queryCards(ctx, query, string(models.CardActive), models.Date(day))
}

// SaveCard creates or updates a card
func (r *Repository) SaveCard(ctx context.Context, c *models.Card) error {
	if c.ID == 0 {
		query := `
		INSERT INTO bank.cards (card_number, cardholder_name, expiry_date, status, balance, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
		err := r.q.QueryRowContext(ctx, query, c.Number, c.HolderName, models.Date(c.ExpiryDate), string(c.Status), c.Balance, c.UserID).
			Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return translate(err, "failed to create card")
		}
		return nil
	}

	query := `
		UPDATE bank.cards
		SET card_number = $2, cardholder_name = $3, expiry_date = $4, status = $5, balance = $6, user_id = $7,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.q.QueryRowContext(ctx, query, c.ID, c.Number, c.HolderName, models.Date(c.ExpiryDate), string(c.Status), c.Balance, c.UserID).
		Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return translate(err, "failed to update card")
	}
	return nil
}

func (r *Repository) DeleteCard(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}

func (r *Repository) ExistsCard(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bank.cards WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check card: %w", err)
	}
	return exists, nil
}
