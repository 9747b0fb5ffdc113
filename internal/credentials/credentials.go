// Package credentials owns the single global supervisor credential record:
// the supervisor password and the restricted-mode exit PIN, stored as bcrypt
// hashes and overwritten in place on change.
package credentials

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Manager validates and persists supervisor credentials.
type Manager struct {
	store storage.Store
	log   zerolog.Logger
}

// NewManager constructs a Manager backed by the given store.
func NewManager(store storage.Store, log zerolog.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// Bootstrap seeds the credential record on first run. It is a no-op when a
// record already exists. Both values must pass the same validation as the
// settings operations.
func (m *Manager) Bootstrap(password, pin string) error {
	existing, err := m.store.GetCredentials()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if err := validatePassword(password); err != nil {
		return fmt.Errorf("bootstrap password: %w", err)
	}
	if err := validatePIN(pin); err != nil {
		return fmt.Errorf("bootstrap pin: %w", err)
	}
	pwHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	pinHash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := m.store.PutCredentials(storage.Credentials{
		PasswordHash: pwHash,
		PINHash:      pinHash,
		UpdatedAt:    time.Now().UTC(),
	}); err != nil {
		return err
	}
	m.log.Info().Msg("supervisor credentials bootstrapped")
	return nil
}

// Configured reports whether a credential record exists.
func (m *Manager) Configured() (bool, error) {
	c, err := m.store.GetCredentials()
	if err != nil {
		return false, err
	}
	return c != nil, nil
}

// SetSupervisorPassword validates and stores a new supervisor password.
// The PIN hash is carried over unchanged.
func (m *Manager) SetSupervisorPassword(newPassword, confirm string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if newPassword != confirm {
		return &policy.ValidationError{Field: "password_confirm", Msg: "confirmation does not match"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	c, err := m.current()
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	c.UpdatedAt = time.Now().UTC()
	if err := m.store.PutCredentials(*c); err != nil {
		return err
	}
	m.log.Info().Msg("supervisor password updated")
	return nil
}

// SetExitPIN validates and stores a new restricted-mode exit PIN.
// The password hash is carried over unchanged.
func (m *Manager) SetExitPIN(newPIN, confirm string) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}
	if newPIN != confirm {
		return &policy.ValidationError{Field: "pin_confirm", Msg: "confirmation does not match"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPIN), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	c, err := m.current()
	if err != nil {
		return err
	}
	c.PINHash = hash
	c.UpdatedAt = time.Now().UTC()
	if err := m.store.PutCredentials(*c); err != nil {
		return err
	}
	m.log.Info().Msg("exit PIN updated")
	return nil
}

// VerifyPassword reports whether the given password matches the stored hash.
// No credentials configured means nothing matches.
func (m *Manager) VerifyPassword(password string) (bool, error) {
	c, err := m.store.GetCredentials()
	if err != nil {
		return false, err
	}
	if c == nil || len(c.PasswordHash) == 0 {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)) == nil, nil
}

// VerifyPIN reports whether the given PIN matches the stored hash.
func (m *Manager) VerifyPIN(pin string) (bool, error) {
	c, err := m.store.GetCredentials()
	if err != nil {
		return false, err
	}
	if c == nil || len(c.PINHash) == 0 {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(c.PINHash, []byte(pin)) == nil, nil
}

func (m *Manager) current() (*storage.Credentials, error) {
	c, err := m.store.GetCredentials()
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &storage.Credentials{}
	}
	return c, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return &policy.ValidationError{Field: "password", Msg: fmt.Sprintf("minimum %d characters", minPasswordLength)}
	}
	return nil
}

func validatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return &policy.ValidationError{Field: "pin", Msg: "must be exactly 4 digits"}
	}
	return nil
}
