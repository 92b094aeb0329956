package scheduler

import (
	"errors"

	"github.com/taproom/kegledger/internal/domain/shared"
)

var (
	// ErrSyncInProgress is returned when a sync is requested while another is still running
	ErrSyncInProgress = shared.NewDomainError("SYNC_IN_PROGRESS", "A POS sync is already running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
