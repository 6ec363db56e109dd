package booking

import (
	"errors"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
)

// storeErr translates storage sentinels into the apperr taxonomy; what is
// left stays internal.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case storage.IsNotFound(err):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, storage.ErrRuleOverlap):
		return apperr.Validation("rule overlaps an existing rule for the same day")
	case errors.Is(err, storage.ErrInUse):
		return apperr.Validation("%s has bookings that are not cancelled; cancel them before deleting", what)
	case errors.Is(err, storage.ErrInvalidTransition):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "invalid status transition", Err: err}
	case storage.IsConflict(err):
		return apperr.ErrSlotUnavailable
	}
	return err
}
