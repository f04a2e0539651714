package persistence

import (
	"errors"

	"github.com/ordersync/backend/internal/domain/integration"
	"gorm.io/gorm"
)

// translateError maps driver errors to domain sentinels. It relies on
// gorm's TranslateError so unique violations arrive as gorm.ErrDuplicatedKey
// for both PostgreSQL and SQLite.
func translateError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return integration.ErrDuplicateKey
	}
	return err
}
