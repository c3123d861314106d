package domain

import "slices"

// Recompute re-derives whether day is fully completed and updates the
// completed set accordingly. Insert and removal are idempotent.
func (p *Protocol) Recompute(day int) {
	complete := p.dayComplete(day)
	idx, present := slices.BinarySearch(p.completedDays, day)
	switch {
	case complete && !present:
		p.completedDays = slices.Insert(p.completedDays, idx, day)
	case !complete && present:
		p.completedDays = slices.Delete(p.completedDays, idx, idx+1)
	}
}

// RecomputeAll rebuilds the completed set from the progress matrix.
func (p *Protocol) RecomputeAll() {
	p.completedDays = p.completedDays[:0]
	for day := 1; day <= len(p.progress); day++ {
		if p.dayComplete(day) {
			p.completedDays = append(p.completedDays, day)
		}
	}
}

func (p *Protocol) dayComplete(day int) bool {
	if day < 1 || day > len(p.progress) || len(p.Routine) == 0 {
		return false
	}
	row := p.progress[day-1]
	if len(row) != len(p.Routine) {
		return false
	}
	for _, done := range row {
		if !done {
			return false
		}
	}
	return true
}

// DerivedCompletedDays computes the completed set directly from progress
// without touching the stored set. Rules use it to cross-check the tracker.
func (p *Protocol) DerivedCompletedDays() []int {
	var out []int
	for day := 1; day <= len(p.progress); day++ {
		if p.dayComplete(day) {
			out = append(out, day)
		}
	}
	return out
}

// IsCompleted reports the read-time "Completed" state: every day is fully done.
func (p *Protocol) IsCompleted() bool {
	return p.TotalDays > 0 && len(p.completedDays) == p.TotalDays
}

// mutate is the single funnel every state-changing operation passes through.
// fn validates before writing and returns the days it touched; a nil slice
// means the routine shape changed and every day is re-derived.
func (p *Protocol) mutate(fn func() ([]int, error)) error {
	touched, err := fn()
	if err != nil {
		return err
	}
	if touched == nil {
		p.RecomputeAll()
		return nil
	}
	for _, day := range touched {
		p.Recompute(day)
	}
	return nil
}
