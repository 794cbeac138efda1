// Package authz is the pre-execution authorization gate. Every description
// of a submitted chain must pass every registered authorizer and validator
// before any operation is converted or executed. The gate is all-or-nothing:
// partially authorizing a multi-step chain would leave ambiguous partial
// side effects with no clean compensation path at this layer.
package authz

import (
	"errors"
	"log/slog"

	"github.com/skylinehq/skyline/internal/credentials"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

// Caller identifies who submitted a chain.
type Caller struct {
	// Identity is the caller's user identifier.
	Identity string
	// Principals are the user plus any groups it belongs to.
	Principals []string
	// Accounts is the caller's account allow-list. Empty means the caller
	// carries no allow-list and the allowed-accounts validators decide.
	Accounts []string
}

// DescriptionAuthorizer vets a single raw description before conversion.
type DescriptionAuthorizer interface {
	Name() string
	Authorize(caller Caller, desc domain.Description) error
}

// AllowedAccountsValidator verifies the caller may target the account a
// description names.
type AllowedAccountsValidator interface {
	Name() string
	Validate(caller Caller, desc domain.Description) error
}

// Gate runs authorizers and validators over every description in a chain.
type Gate struct {
	authorizers []DescriptionAuthorizer
	validators  []AllowedAccountsValidator
	logger      *slog.Logger
}

// NewGate builds a gate over the given authorizers and validators.
func NewGate(authorizers []DescriptionAuthorizer, validators []AllowedAccountsValidator, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{authorizers: authorizers, validators: validators, logger: logger}
}

// Check runs the full gate over the chain. Any rejection aborts the entire
// submission with an UnauthorizedError naming the first failing authorizer;
// no partial execution ever follows a rejected chain.
func (g *Gate) Check(caller Caller, descs []domain.Description) error {
	for _, desc := range descs {
		for _, a := range g.authorizers {
			if err := a.Authorize(caller, desc); err != nil {
				return g.reject(caller, a.Name(), desc, err)
			}
		}
	}
	for _, desc := range descs {
		for _, v := range g.validators {
			if err := v.Validate(caller, desc); err != nil {
				return g.reject(caller, v.Name(), desc, err)
			}
		}
	}
	return nil
}

func (g *Gate) reject(caller Caller, name string, desc domain.Description, err error) error {
	telemetry.AuthzRejectionsTotal.WithLabelValues(name).Inc()
	g.logger.Warn("submission rejected",
		slog.String("authorizer", name),
		slog.String("caller", caller.Identity),
		slog.String("account", desc.Account()),
		slog.String("operation", desc.Type()),
		slog.String("error", err.Error()),
	)

	var unauthorized *domain.UnauthorizedError
	if errors.As(err, &unauthorized) {
		return err
	}
	return &domain.UnauthorizedError{
		Authorizer: name,
		Account:    desc.Account(),
		Reason:     err.Error(),
	}
}

// PermissionsAuthorizer checks the caller's principals hold WRITE on the
// account each description targets, honoring the missing-vs-empty
// permission-set distinction.
type PermissionsAuthorizer struct {
	Accounts credentials.Repository
}

func (a *PermissionsAuthorizer) Name() string { return "account-permissions" }

func (a *PermissionsAuthorizer) Authorize(caller Caller, desc domain.Description) error {
	account := desc.Account()
	if account == "" {
		return &domain.InvalidDescriptionError{
			Provider:      desc.Provider(),
			OperationType: desc.Type(),
			Reason:        "missing required field 'account'",
		}
	}
	creds, err := a.Accounts.Get(account)
	if err != nil {
		return err
	}
	if !creds.Permissions.Allows(credentials.AuthorizationWrite, caller.Principals) {
		return &domain.UnauthorizedError{
			Authorizer: a.Name(),
			Account:    account,
			Reason:     "caller lacks WRITE on account",
		}
	}
	return nil
}

// AllowListValidator rejects descriptions targeting accounts outside the
// caller's allow-list. A caller without an allow-list is unrestricted.
type AllowListValidator struct{}

func (v *AllowListValidator) Name() string { return "allowed-accounts" }

func (v *AllowListValidator) Validate(caller Caller, desc domain.Description) error {
	if len(caller.Accounts) == 0 {
		return nil
	}
	account := desc.Account()
	for _, allowed := range caller.Accounts {
		if allowed == account {
			return nil
		}
	}
	return &domain.UnauthorizedError{
		Authorizer: v.Name(),
		Account:    account,
		Reason:     "account not in caller allow-list",
	}
}
