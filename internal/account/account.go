// Package account is the demo account registry kept in the key-value store.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/kv"
)

const MinPasswordLength = 6

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Reason string

const (
	ReasonEmptyUsername    Reason = "empty_username"
	ReasonEmptyPassword    Reason = "empty_password"
	ReasonPasswordTooShort Reason = "password_too_short"
	ReasonPasswordMismatch Reason = "password_mismatch"
	ReasonAlreadyExists    Reason = "already_exists"
	ReasonNotFound         Reason = "not_found"
	ReasonWrongPassword    Reason = "wrong_password"
)

var reasonKeys = map[Reason]string{
	ReasonEmptyUsername:    i18n.KeyAuthUsernameRequired,
	ReasonEmptyPassword:    i18n.KeyAuthPasswordRequired,
	ReasonPasswordTooShort: i18n.KeyAuthPasswordTooShort,
	ReasonPasswordMismatch: i18n.KeyAuthPasswordMismatch,
	ReasonAlreadyExists:    i18n.KeyAuthUserExists,
	ReasonNotFound:         i18n.KeyAuthUserNotFound,
	ReasonWrongPassword:    i18n.KeyAuthInvalidPassword,
}

// ValidationError is a user-facing rejection of a register or login attempt.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "account: " + strings.ReplaceAll(string(e.Reason), "_", " ")
}

// MessageKey is the string table key describing the rejection.
func (e *ValidationError) MessageKey() string {
	return reasonKeys[e.Reason]
}

func invalid(r Reason) error {
	return &ValidationError{Reason: r}
}

// IsReason reports whether err is a ValidationError with reason r.
func IsReason(err error, r Reason) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Reason == r
}

type credential struct {
	HashedPassword string `json:"hashedPassword"`
}

// Store keeps the account list, credential digests and the current account.
type Store struct {
	kv     kv.Store
	hasher Hasher

	// mu serializes read-modify-write of the account list.
	mu sync.Mutex
}

func NewStore(store kv.Store, hasher Hasher) *Store {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &Store{kv: store, hasher: hasher}
}

// Register creates an account and makes it current.
func (s *Store) Register(ctx context.Context, username, password, confirm string) (Account, error) {
	name := strings.TrimSpace(username)
	switch {
	case name == "":
		return Account{}, invalid(ReasonEmptyUsername)
	case password == "":
		return Account{}, invalid(ReasonEmptyPassword)
	case len([]rune(password)) < MinPasswordLength:
		return Account{}, invalid(ReasonPasswordTooShort)
	case password != confirm:
		return Account{}, invalid(ReasonPasswordMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.list(ctx)
	if err != nil {
		return Account{}, err
	}
	if _, ok := find(accounts, name); ok {
		return Account{}, invalid(ReasonAlreadyExists)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	acct := Account{ID: uuid.NewString(), Username: name}

	if err := kv.SetJSON(ctx, s.kv, kv.CredentialKey(acct.ID), credential{HashedPassword: digest}); err != nil {
		return Account{}, fmt.Errorf("save credential: %w", err)
	}
	if err := kv.SetJSON(ctx, s.kv, kv.KeyUsers, append(accounts, acct)); err != nil {
		return Account{}, fmt.Errorf("save accounts: %w", err)
	}
	if err := kv.SetJSON(ctx, s.kv, kv.KeyCurrentUser, acct); err != nil {
		return Account{}, fmt.Errorf("save current account: %w", err)
	}
	return acct, nil
}

// Login verifies the password and makes the account current.
func (s *Store) Login(ctx context.Context, username, password string) (Account, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return Account{}, invalid(ReasonEmptyUsername)
	}
	if password == "" {
		return Account{}, invalid(ReasonEmptyPassword)
	}

	s.mu.Lock()
	accounts, err := s.list(ctx)
	s.mu.Unlock()
	if err != nil {
		return Account{}, err
	}
	acct, ok := find(accounts, name)
	if !ok {
		return Account{}, invalid(ReasonNotFound)
	}

	var cred credential
	found, err := kv.GetJSON(ctx, s.kv, kv.CredentialKey(acct.ID), &cred)
	if err != nil {
		return Account{}, fmt.Errorf("load credential: %w", err)
	}
	if !found {
		return Account{}, invalid(ReasonNotFound)
	}
	if !s.hasher.Verify(password, cred.HashedPassword) {
		return Account{}, invalid(ReasonWrongPassword)
	}

	if err := kv.SetJSON(ctx, s.kv, kv.KeyCurrentUser, acct); err != nil {
		return Account{}, fmt.Errorf("save current account: %w", err)
	}
	return acct, nil
}

func (s *Store) Logout(ctx context.Context) error {
	if err := s.kv.Delete(ctx, kv.KeyCurrentUser); err != nil {
		return fmt.Errorf("clear current account: %w", err)
	}
	return nil
}

// Current returns the signed-in account, or nil when nobody is signed in.
func (s *Store) Current(ctx context.Context) (*Account, error) {
	var acct Account
	ok, err := kv.GetJSON(ctx, s.kv, kv.KeyCurrentUser, &acct)
	if err != nil {
		return nil, fmt.Errorf("load current account: %w", err)
	}
	if !ok || acct.ID == "" {
		return nil, nil
	}
	return &acct, nil
}

func (s *Store) list(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if _, err := kv.GetJSON(ctx, s.kv, kv.KeyUsers, &accounts); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return accounts, nil
}

func find(accounts []Account, username string) (Account, bool) {
	for _, a := range accounts {
		if strings.EqualFold(a.Username, username) {
			return a, true
		}
	}
	return Account{}, false
}
