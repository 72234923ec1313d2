package service

import (
	"errors"
	"fmt"

	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/sentinel"
)

// translate maps store sentinels onto domain errors. Errors that already carry
// a domain code pass through untouched, so translation happens exactly once.
func translate(err error, notFound dErrors.Code, entity string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, notFound, fmt.Sprintf("%s not found", entity))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s already exists", entity))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to access %s", entity))
	}
}

// outcome is the metrics and audit label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(dErrors.CodeOf(err))
}
