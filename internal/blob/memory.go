package blob

import memorystore "habitcore/internal/infra/blob/memory"

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
