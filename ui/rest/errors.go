package rest

import (
	"errors"

	pkgError "github.com/AzielCF/az-publisher/pkg/error"
	"github.com/AzielCF/az-publisher/publishing/domain/content"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
)

// restError maps domain sentinels onto errors the recovery middleware can render.
func restError(err error) error {
	if err == nil {
		return nil
	}
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return err
	}
	switch {
	case errors.Is(err, scheduledpost.ErrNotFound),
		errors.Is(err, content.ErrPostNotFound),
		errors.Is(err, content.ErrProjectNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, scheduledpost.ErrEntryInFlight),
		errors.Is(err, scheduledpost.ErrInvalidTransition),
		errors.Is(err, scheduledpost.ErrDuplicateActive):
		return pkgError.ConflictError(err.Error())
	}
	return pkgError.InternalServerError(err.Error())
}
