package users

// Account is a User together with the credentials the backend keeps for it
type Account struct {
	User         User
	PasswordHash string
	Verified     bool
}

type AccountRepo interface {
	Upsert(account *Account) error
	Delete(email string) error
	GetByEmail(email string) (*Account, error)
	GetByID(ID string) (*Account, error)
	SetVerified(email string, verified bool) error
	SetPasswordHash(email, hash string) error
}
