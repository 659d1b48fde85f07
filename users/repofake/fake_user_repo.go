package fakeuserrepo

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	interrors "github.com/turfbook/turf-client/internal/errors"
	"github.com/turfbook/turf-client/users"
)

var _ users.AccountRepo = (*FakeAccountRepo)(nil)

type FakeAccountRepo struct {
	accounts map[string]*users.Account
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[string]*users.Account),
		emailIds: make(map[string]string),
	}
}

func (ar *FakeAccountRepo) Upsert(account *users.Account) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	if account.User.ID == "" {
		account.User.ID = uuid.New().String()
	}
	ar.accounts[account.User.ID] = account
	ar.emailIds[normalise(account.User.Email)] = account.User.ID
	return nil
}

func (ar *FakeAccountRepo) Delete(email string) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	userID, ok := ar.emailIds[normalise(email)]
	if !ok {
		return interrors.ErrNotFound
	}
	delete(ar.emailIds, normalise(email))
	delete(ar.accounts, userID)
	return nil
}

func (ar *FakeAccountRepo) GetByEmail(email string) (*users.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.emailIds[normalise(email)]
	if !ok {
		return nil, interrors.ErrNotFound
	}
	return copyAccount(ar.accounts[id]), nil
}

func (ar *FakeAccountRepo) GetByID(id string) (*users.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	account, ok := ar.accounts[id]
	if !ok {
		return nil, interrors.ErrNotFound
	}
	return copyAccount(account), nil
}

func (ar *FakeAccountRepo) SetVerified(email string, verified bool) error {
	return ar.update(email, func(a *users.Account) { a.Verified = verified })
}

func (ar *FakeAccountRepo) SetPasswordHash(email, hash string) error {
	return ar.update(email, func(a *users.Account) { a.PasswordHash = hash })
}

func (ar *FakeAccountRepo) update(email string, fn func(*users.Account)) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	id, ok := ar.emailIds[normalise(email)]
	if !ok {
		return interrors.ErrNotFound
	}
	fn(ar.accounts[id])
	return nil
}

func copyAccount(a *users.Account) *users.Account {
	c := *a
	c.User = *a.User.Clone()
	return &c
}

func normalise(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
