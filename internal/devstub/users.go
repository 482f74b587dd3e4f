package devstub

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rdportal/client/internal/models"
)

// account is a seed user: a profile plus an argon2id password hash.
type account struct {
	profile      models.UserProfile
	passwordHash string
}

// Directory is the stub's in-memory user base.
type Directory struct {
	mu       sync.RWMutex
	byName   map[string]*account
	accounts []*account
}

func NewDirectory() *Directory {
	return &Directory{byName: make(map[string]*account)}
}

// Add registers a user. The profile id is assigned when absent.
func (d *Directory) Add(profile models.UserProfile, password string) error {
	if profile.Username == "" {
		return fmt.Errorf("username required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Username
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byName[profile.Username]; exists {
		return fmt.Errorf("user %q already seeded", profile.Username)
	}
	acct := &account{profile: profile, passwordHash: hash}
	d.byName[profile.Username] = acct
	d.accounts = append(d.accounts, acct)
	return nil
}

func (d *Directory) authenticate(username string, password string) (*models.UserProfile, bool) {
	d.mu.RLock()
	acct, ok := d.byName[username]
	d.mu.RUnlock()
	if !ok || !verifyPassword(password, acct.passwordHash) {
		return nil, false
	}
	profile := acct.profile
	return &profile, true
}

func (d *Directory) byID(id string) (*models.UserProfile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, acct := range d.accounts {
		if acct.profile.ID == id {
			profile := acct.profile
			return &profile, true
		}
	}
	return nil, false
}

// SeedDefaults loads the demo accounts shipped with the stub: a super admin
// and a regular designer.
func (d *Directory) SeedDefaults() error {
	if err := d.Add(models.UserProfile{
		Username:    "admin",
		DisplayName: "Administrator",
		Email:       "admin@rdportal.local",
		Team:        "platform",
		Role:        "admin",
		Roles: []models.Role{{
			ID:          "role-super-admin",
			Name:        "Super Admin",
			Code:        models.RoleSuperAdmin,
			Permissions: []string{models.PermissionAll},
		}},
	}, "admin123"); err != nil {
		return err
	}

	return d.Add(models.UserProfile{
		Username:    "alice",
		DisplayName: "Alice Zhang",
		Email:       "alice@rdportal.local",
		Team:        "software",
		Role:        "designer",
		Roles: []models.Role{{
			ID:          "role-designer",
			Name:        "Designer",
			Code:        "designer",
			Permissions: []string{"project:read", "knowledge:read", "forum:write"},
		}},
	}, "alice123")
}
