package game

import (
	"context"
	"errors"

	"versus/domain"
)

// MultiRecorder hands a finished match to every recorder, even when an
// earlier one fails.
type MultiRecorder []MatchRecorder

func (m MultiRecorder) RecordMatch(ctx context.Context, result domain.MatchResult) error {
	var errs []error
	for _, recorder := range m {
		if err := recorder.RecordMatch(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
