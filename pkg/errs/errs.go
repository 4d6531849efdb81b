// Package errs defines the error taxonomy shared by the training pipeline.
//
// Every stage fails fast with one of the sentinel kinds below wrapped in a
// specific message, so callers can branch with errors.Is while the printed
// cause stays actionable.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSchema reports a missing label column, duplicate column names,
	// or a table left without usable feature columns or rows.
	ErrSchema = errors.New("schema error")

	// ErrDataQuality reports data that cannot support a requested
	// operation, such as a stratified split over a singleton class.
	ErrDataQuality = errors.New("data quality error")

	// ErrConfiguration reports settings that contradict the data or each
	// other, such as a normal label that matches no rows.
	ErrConfiguration = errors.New("configuration error")

	// ErrSerialization reports a failure to write or read an artifact.
	ErrSerialization = errors.New("serialization error")
)

// Schema returns an error of kind ErrSchema.
func Schema(format string, args ...any) error {
	return errors.Wrapf(ErrSchema, format, args...)
}

// DataQuality returns an error of kind ErrDataQuality.
func DataQuality(format string, args ...any) error {
	return errors.Wrapf(ErrDataQuality, format, args...)
}

// Configuration returns an error of kind ErrConfiguration.
func Configuration(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// Serialization wraps err as ErrSerialization. The original error's text
// is preserved in the message.
func Serialization(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrSerialization, "%s: %v", fmt.Sprintf(format, args...), err)
}
