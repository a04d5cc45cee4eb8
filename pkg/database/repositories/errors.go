package repositories

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mhrivnak/orderflow/pkg/errdef"
)

// notFound converts gorm.ErrRecordNotFound into an errdef not found error that still wraps it.
func notFound(err error, format string, a ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errdef.NewNotFound(format+": %w", append(a, err)...)
	}
	return err
}
