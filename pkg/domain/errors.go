package domain

import "fmt"

// ValidationError reports malformed input such as totalDays < 1 or an invalid offset.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OutOfRangeError reports a day or item index outside its valid bounds.
type OutOfRangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e OutOfRangeError) Error() string {
	if e.Max < e.Min {
		return fmt.Sprintf("%s %d out of range: no valid values", e.Field, e.Value)
	}
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// EditForbiddenError is returned when a toggle targets a day other than the effective day.
type EditForbiddenError struct {
	Day          int
	EffectiveDay int
}

func (e EditForbiddenError) Error() string {
	return fmt.Sprintf("day %d is not editable: only the effective day %d may be toggled", e.Day, e.EffectiveDay)
}

// NotFoundError is returned when a protocol, item or archive does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PersistenceError wraps a failure reported by the persistence or archive port.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

func dayRange(day, totalDays int) error {
	if day < 1 || day > totalDays {
		return OutOfRangeError{Field: "day", Value: day, Min: 1, Max: totalDays}
	}
	return nil
}

func itemRange(item, routineLen int) error {
	if item < 0 || item >= routineLen {
		return OutOfRangeError{Field: "item", Value: item, Min: 0, Max: routineLen - 1}
	}
	return nil
}
