package service

import (
	"errors"
	"fmt"

	"tableside/internal/database"
	"tableside/internal/domain"
)

// storeError translates entity store failures into domain errors.
func storeError(err error, what string, id any) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, database.ErrNotFound):
		return domain.NotFound("%s %v not found", what, id)
	case errors.Is(err, database.ErrConcurrentModification):
		return domain.Conflict("%s %v was modified concurrently", what, id)
	default:
		return domain.Unknown(err, "failed to access %s", what)
	}
}

func sessionStoreError(err error) error {
	return domain.Unknown(fmt.Errorf("session store: %w", err), "session store unavailable")
}
