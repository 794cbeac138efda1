package credentials

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/skylinehq/skyline/internal/dispatch"
	"github.com/skylinehq/skyline/internal/domain"
)

// Repository is the read-only lookup of account definitions by name.
// Definitions are refreshed out-of-band; the orchestration core never
// mutates them.
type Repository interface {
	Get(name string) (*Credentials, error)
	All() []*Credentials
}

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Credentials
}

// NewRepository creates a repository over the given account definitions.
func NewRepository(accounts ...*Credentials) Repository {
	repo := &memoryRepository{accounts: make(map[string]*Credentials, len(accounts))}
	for _, a := range accounts {
		repo.accounts[a.Name] = a
	}
	return repo
}

func (r *memoryRepository) Get(name string) (*Credentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.accounts[name]
	if !ok {
		return nil, &domain.AccountNotFoundError{Account: name}
	}
	return c, nil
}

func (r *memoryRepository) All() []*Credentials {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Credentials, 0, len(r.accounts))
	for _, c := range r.accounts {
		out = append(out, c)
	}
	return out
}

// accountSpec mirrors one entry of the accounts file.
type accountSpec struct {
	Name        string              `mapstructure:"name"`
	Provider    string              `mapstructure:"provider"`
	Permissions map[string][]string `mapstructure:"permissions"`
}

// LoadFile reads account definitions from a YAML accounts file.
//
// Each account gets an empty handler registry; provider plugins populate it
// during their registration pass at startup.
func LoadFile(path string) (Repository, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read accounts file %s: %w", path, err)
	}

	var specs []accountSpec
	if err := v.UnmarshalKey("accounts", &specs); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}

	accounts := make([]*Credentials, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("accounts file %s: account with empty name", path)
		}
		perms := make(Permissions, len(spec.Permissions))
		for auth, principals := range spec.Permissions {
			// Preserve present-but-empty: an empty list means nobody.
			if principals == nil {
				principals = []string{}
			}
			// viper lowercases config keys; authorization names are upper.
			perms[Authorization(strings.ToUpper(auth))] = principals
		}
		accounts = append(accounts, &Credentials{
			Name:        spec.Name,
			Provider:    spec.Provider,
			Permissions: perms,
			Resources:   dispatch.NewHandlerRegistry(),
		})
	}
	return NewRepository(accounts...), nil
}
