package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// Feature keys for flows the gate library has no built-in constant for.
const (
	FeatureAccountsDelete         = "users.delete_account"
	FeatureAccountsSecondaryEmail = "users.secondary_email"
)

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, "Feature gate check failed").
		WithCode(errors.CodeForbidden)
}

func requireFeatureGate(ctx context.Context, featureGate gate.FeatureGate, key string, disabledErr error) error {
	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(disabledErr),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}

func requirePasswordResetGate(ctx context.Context, featureGate gate.FeatureGate, allowFinalize bool) error {
	opts := []guard.Option{
		guard.WithDisabledError(ErrPasswordResetDisabled),
		guard.WithErrorMapper(normalizeFeatureGateError),
	}
	if allowFinalize {
		opts = append(opts, guard.WithOverrides(gate.FeatureUsersPasswordResetFinalize))
	}
	return guard.Require(ctx, featureGate, gate.FeatureUsersPasswordReset, opts...)
}

// ConfigFeatureGate answers gate checks from the immutable Config so policy
// flags and feature gates cannot drift apart. Keys with no config flag are
// enabled.
type ConfigFeatureGate struct {
	cfg Config
}

// NewConfigFeatureGate builds a gate backed by the engine configuration.
func NewConfigFeatureGate(cfg Config) *ConfigFeatureGate {
	return &ConfigFeatureGate{cfg: cfg}
}

// Enabled implements gate.FeatureGate.
func (g *ConfigFeatureGate) Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error) {
	if g.cfg == nil {
		return true, nil
	}

	switch key {
	case FeatureAccountsDelete:
		return g.cfg.GetAllowDeleteAccount(), nil
	default:
		return true, nil
	}
}

var _ gate.FeatureGate = (*ConfigFeatureGate)(nil)
