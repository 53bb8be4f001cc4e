package display

// FirstCandidate is the first display number tried by auto-allocation.
// Low numbers are left alone since real X servers usually sit on :0.
const FirstCandidate = 99

// Allocator picks a display identifier.
type Allocator struct {
	probe *Probe
	fixed *int
	reuse bool
}

// NewAllocator returns an Allocator. When fixed is non-nil its value is used
// as-is; otherwise candidates are scanned from FirstCandidate upward.
func NewAllocator(probe *Probe, fixed *int, reuse bool) *Allocator {
	return &Allocator{probe: probe, fixed: fixed, reuse: reuse}
}

// Resolve returns a display identifier of the form ":<n>".
//
// A fixed display number is returned without consulting the probe. In
// reuse mode the first candidate is taken whether or not it is locked, so
// callers share an existing server instead of starting a second one.
// Otherwise the first candidate without a lock file wins. Resolve never
// fails; the candidate space is unbounded.
func (a *Allocator) Resolve() string {
	if a.fixed != nil {
		return Format(*a.fixed)
	}

	n := FirstCandidate
	if a.reuse {
		return Format(n)
	}
	for a.probe.Locked(Format(n)) {
		n++
	}
	return Format(n)
}
