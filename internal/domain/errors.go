package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
)

// DataQualityError signals that upstream data was too ambiguous or too thin
// to act on safely: identifier collisions, malformed price series,
// insufficient history. It is surfaced as a distinct category so operators can
// fix the source data; it is never coerced into a best-guess match.
type DataQualityError struct {
	Reason    string
	ListingID string
	EntryID   string
}

func (e *DataQualityError) Error() string {
	switch {
	case e.ListingID != "" && e.EntryID != "":
		return fmt.Sprintf("data quality: %s (listing %s, entry %s)", e.Reason, e.ListingID, e.EntryID)
	case e.ListingID != "":
		return fmt.Sprintf("data quality: %s (listing %s)", e.Reason, e.ListingID)
	default:
		return "data quality: " + e.Reason
	}
}

// IsDataQuality reports whether err is (or wraps) a DataQualityError.
func IsDataQuality(err error) bool {
	var dq *DataQualityError
	return errors.As(err, &dq)
}

// DependencyError wraps a failure of an external collaborator (embedding
// service, catalog query). Listings affected by it are marked OutcomeFailed so
// a later run can retry them.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsDependency reports whether err is (or wraps) a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
