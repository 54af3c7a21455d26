package laybyconfig

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/pkg/config"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
)

// Policy is the resolved layby policy the state machine consumes. Values
// come from the location row, then the business row, then engine defaults.
type Policy struct {
	Enabled             bool
	MinDepositPercent   decimal.Decimal
	MaxDurationDays     int
	MaxExtensions       int
	ExtensionFee        decimal.Decimal
	CancellationFeePct  decimal.Decimal
	CancellationFeeMin  decimal.Decimal
	RestockingFee       decimal.Decimal
	ReminderLeadDays    int
	CollectionGraceDays int
}

// Service resolves layby policy for a business/location pair.
type Service interface {
	Resolve(ctx context.Context, businessID uuid.UUID, locationID uuid.UUID) (*Policy, error)
}

type service struct {
	repo     Repository
	defaults Policy
}

// NewService wires a config service with the provided repository and
// engine-wide fallback values.
func NewService(repo Repository, cfg config.LaybyConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("laybyconfig repository required")
	}

	defaults, err := defaultPolicy(cfg)
	if err != nil {
		return nil, err
	}
	return &service{repo: repo, defaults: defaults}, nil
}

func (s *service) Resolve(ctx context.Context, businessID uuid.UUID, locationID uuid.UUID) (*Policy, error) {
	if businessID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}

	row, err := s.repo.FindForLocation(ctx, businessID, locationID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		policy := s.defaults
		return &policy, nil
	}

	return &Policy{
		Enabled:             row.Enabled,
		MinDepositPercent:   row.MinDepositPercent,
		MaxDurationDays:     row.MaxDurationDays,
		MaxExtensions:       row.MaxExtensions,
		ExtensionFee:        row.ExtensionFee,
		CancellationFeePct:  row.CancellationFeePct,
		CancellationFeeMin:  row.CancellationFeeMin,
		RestockingFee:       row.RestockingFee,
		ReminderLeadDays:    row.ReminderLeadDays,
		CollectionGraceDays: row.CollectionGraceDays,
	}, nil
}

func defaultPolicy(cfg config.LaybyConfig) (Policy, error) {
	minDeposit, err := decimal.NewFromString(cfg.DefaultMinDepositPercent)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid default min deposit percent %q: %w", cfg.DefaultMinDepositPercent, err)
	}
	cancelPct, err := decimal.NewFromString(cfg.DefaultCancellationFeePct)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid default cancellation fee percent %q: %w", cfg.DefaultCancellationFeePct, err)
	}
	cancelMin, err := decimal.NewFromString(cfg.DefaultCancellationFeeMin)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid default cancellation fee minimum %q: %w", cfg.DefaultCancellationFeeMin, err)
	}
	restocking, err := decimal.NewFromString(cfg.DefaultRestockingFee)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid default restocking fee %q: %w", cfg.DefaultRestockingFee, err)
	}
	extensionFee, err := decimal.NewFromString(cfg.DefaultExtensionFee)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid default extension fee %q: %w", cfg.DefaultExtensionFee, err)
	}

	return Policy{
		Enabled:             true,
		MinDepositPercent:   minDeposit,
		MaxDurationDays:     cfg.DefaultMaxDurationDays,
		MaxExtensions:       cfg.DefaultMaxExtensions,
		ExtensionFee:        extensionFee,
		CancellationFeePct:  cancelPct,
		CancellationFeeMin:  cancelMin,
		RestockingFee:       restocking,
		ReminderLeadDays:    cfg.DefaultReminderLeadDays,
		CollectionGraceDays: cfg.DefaultCollectionGraceDays,
	}, nil
}
