package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oindividum/bankcards-service/internal/models"
)

// Memory is an in-process Store. One mutex serializes every operation; a
// transaction works on a copy of the data that replaces the original only
// on success.
type Memory struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: newMemState(), now: time.Now}
}

type memState struct {
	users      map[int64]models.User
	cards      map[int64]models.Card
	nextUserID int64
	nextCardID int64
}

func newMemState() *memState {
	return &memState{users: map[int64]models.User{}, cards: map[int64]models.Card{}}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:      make(map[int64]models.User, len(s.users)),
		cards:      make(map[int64]models.Card, len(s.cards)),
		nextUserID: s.nextUserID,
		nextCardID: s.nextCardID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.cards {
		c.cards[k] = v
	}
	return c
}

func (m *Memory) view() memView { return memView{st: m.state, now: m.now} }

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, memView{st: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindUserByID(ctx, id)
}

func (m *Memory) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindUserByUsername(ctx, username)
}

func (m *Memory) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ExistsByUsername(ctx, username)
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListUsers(ctx)
}

func (m *Memory) SaveUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveUser(ctx, u)
}

func (m *Memory) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteUser(ctx, id)
}

func (m *Memory) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindCardByID(ctx, id)
}

func (m *Memory) FindCardByIDAndOwner(ctx context.Context, id, userID int64) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindCardByIDAndOwner(ctx, id, userID)
}

func (m *Memory) FindCardByNumber(ctx context.Context, encrypted string) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindCardByNumber(ctx, encrypted)
}

func (m *Memory) LockCardsByNumber(ctx context.Context, encrypted ...string) ([]models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().LockCardsByNumber(ctx, encrypted...)
}

func (m *Memory) FindCardsByOwner(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.Card], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindCardsByOwner(ctx, userID, page)
}

func (m *Memory) ListCards(ctx context.Context, page models.PageRequest) (models.Page[models.Card], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListCards(ctx, page)
}

func (m *Memory) ListActiveCardsExpiringBefore(ctx context.Context, day time.Time) ([]models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListActiveCardsExpiringBefore(ctx, day)
}

func (m *Memory) SaveCard(ctx context.Context, c *models.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveCard(ctx, c)
}

func (m *Memory) DeleteCard(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteCard(ctx, id)
}

func (m *Memory) ExistsCard(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ExistsCard(ctx, id)
}

// memView runs operations on a state without locking; the caller holds the lock.
type memView struct {
	st  *memState
	now func() time.Time
}

func (v memView) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, v)
}

func (v memView) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := v.st.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (v memView) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range v.st.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (v memView) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	u, err := v.FindUserByUsername(ctx, username)
	return u != nil, err
}

func (v memView) ListUsers(context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(v.st.users))
	for _, u := range v.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v memView) SaveUser(_ context.Context, u *models.User) error {
	for _, other := range v.st.users {
		if other.Username == u.Username && other.ID != u.ID {
			return ErrDuplicate
		}
	}
	if u.ID == 0 {
		v.st.nextUserID++
		u.ID = v.st.nextUserID
		u.CreatedAt = v.now().UTC()
	} else if _, ok := v.st.users[u.ID]; !ok {
		return nil
	}
	v.st.users[u.ID] = *u
	return nil
}

func (v memView) DeleteUser(_ context.Context, id int64) error {
	delete(v.st.users, id)
	for cid, c := range v.st.cards {
		if c.UserID == id {
			delete(v.st.cards, cid)
		}
	}
	return nil
}

func (v memView) FindCardByID(_ context.Context, id int64) (*models.Card, error) {
	c, ok := v.st.cards[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v memView) FindCardByIDAndOwner(ctx context.Context, id, userID int64) (*models.Card, error) {
	c, err := v.FindCardByID(ctx, id)
	if err != nil || c == nil || c.UserID != userID {
		return nil, err
	}
	return c, nil
}

func (v memView) FindCardByNumber(_ context.Context, encrypted string) (*models.Card, error) {
	for _, c := range v.st.cards {
		if c.Number == encrypted {
			return &c, nil
		}
	}
	return nil, nil
}

func (v memView) LockCardsByNumber(_ context.Context, encrypted ...string) ([]models.Card, error) {
	want := make(map[string]struct{}, len(encrypted))
	for _, e := range encrypted {
		want[e] = struct{}{}
	}
	var out []models.Card
	for _, c := range v.st.cards {
		if _, ok := want[c.Number]; ok {
			out = append(out, c)
		}
	}
	sortCards(out)
	return out, nil
}

func (v memView) FindCardsByOwner(_ context.Context, userID int64, page models.PageRequest) (models.Page[models.Card], error) {
	return v.page(page, func(c models.Card) bool { return c.UserID == userID }), nil
}

func (v memView) ListCards(_ context.Context, page models.PageRequest) (models.Page[models.Card], error) {
	return v.page(page, func(models.Card) bool { return true }), nil
}

func (v memView) ListActiveCardsExpiringBefore(_ context.Context, day time.Time) ([]models.Card, error) {
	var out []models.Card
	for _, c := range v.st.cards {
		if c.Status == models.CardActive && c.ExpiryDate.Before(day) {
			out = append(out, c)
		}
	}
	sortCards(out)
	return out, nil
}

func (v memView) SaveCard(_ context.Context, c *models.Card) error {
	if c.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	if c.Balance.GreaterThan(models.MaxBalance) {
		return ErrBalanceOverflow
	}
	for _, other := range v.st.cards {
		if other.Number == c.Number && other.ID != c.ID {
			return ErrDuplicate
		}
	}
	now := v.now().UTC()
	if c.ID == 0 {
		v.st.nextCardID++
		c.ID = v.st.nextCardID
		c.CreatedAt = now
	} else if _, ok := v.st.cards[c.ID]; !ok {
		return nil
	}
	c.UpdatedAt = now
	v.st.cards[c.ID] = *c
	return nil
}

func (v memView) DeleteCard(_ context.Context, id int64) error {
	delete(v.st.cards, id)
	return nil
}

func (v memView) ExistsCard(_ context.Context, id int64) (bool, error) {
	_, ok := v.st.cards[id]
	return ok, nil
}

func (v memView) page(req models.PageRequest, keep func(models.Card) bool) models.Page[models.Card] {
	req = req.Normalize()
	var all []models.Card
	for _, c := range v.st.cards {
		if keep(c) {
			all = append(all, c)
		}
	}
	sortCards(all)

	out := models.Page[models.Card]{Items: []models.Card{}, Page: req.Page, Size: req.Size, Total: int64(len(all))}
	start := req.Offset()
	if start < 0 || start >= len(all) {
		return out
	}
	end := min(start+req.Size, len(all))
	out.Items = append(out.Items, all[start:end]...)
	return out
}

func sortCards(cs []models.Card) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
}
