package keg

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"go.uber.org/zap"
)

// KegLocker serializes scan and retirement operations on a single keg.
// Lock blocks until the lock is held or ctx ends; a lock that cannot be
// obtained returns keg.ErrKegBusy. The returned function releases it.
type KegLocker interface {
	Lock(ctx context.Context, kegID uuid.UUID) (unlock func(), err error)
}

// MirrorMode controls how scan metadata is mirrored to the ledger
type MirrorMode string

const (
	// MirrorAsync mirrors in the background; failures are only logged
	MirrorAsync MirrorMode = "async"
	// MirrorSync mirrors before returning; failures become warnings on the result
	MirrorSync MirrorMode = "sync"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct validation and converts the first failure into keg.ErrValidation
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return keg.NewValidationError("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return keg.NewValidationError("%s failed %s", fe.Field(), fe.Tag())
	}
	return keg.NewValidationError("%v", err)
}

// publishDomainEvents hands the aggregate's pending events to the publisher and clears them
func publishDomainEvents(ctx context.Context, publisher shared.EventPublisher, log *zap.Logger, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if publisher == nil || len(events) == 0 {
		agg.ClearDomainEvents()
		return
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		log.Warn("Failed to publish domain events", zap.Int("count", len(events)), zap.Error(err))
	}
	agg.ClearDomainEvents()
}

// nopLocker is used when no locker is configured. Persistence CAS still guards retirement.
type nopLocker struct{}

func (nopLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}
