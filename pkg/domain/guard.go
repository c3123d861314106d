package domain

// CanMutateDay reports whether a toggle may write to day. Only the effective
// day is writable; past days are frozen and future days cannot be pre-filled.
// Structural edits (routine add/remove, overrides, settings) do not consult it.
func CanMutateDay(day, effectiveDay int) bool {
	return day == effectiveDay
}
