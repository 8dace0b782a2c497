package tenant

import (
	"errors"
	"fmt"
)

var (
	// ErrActorStopped is returned for operations sent to a stopped actor
	ErrActorStopped = errors.New("tenant actor stopped")

	// ErrInvalidTenantID is returned for tenant ids that cannot name a store
	ErrInvalidTenantID = errors.New("invalid tenant id")
)

// StorageFault wraps a failure of the embedded store: a malformed statement
// or an unavailable database. Storage faults are always surfaced.
type StorageFault struct {
	Op  string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error {
	return e.Err
}

func fault(op string, err error) error {
	if err == nil {
		return nil
	}
	var sf *StorageFault
	if errors.As(err, &sf) {
		return err
	}
	return &StorageFault{Op: op, Err: err}
}
