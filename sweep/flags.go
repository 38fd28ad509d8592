package sweep

import "fmt"

// RunState is whether the pipeline is meant to be processing transfers.
type RunState int

const (
	Stopped RunState = iota
	Running
)

func (r RunState) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	}
	return fmt.Sprintf("RunState(%d)", int(r))
}

// Finiteness is how a run ends on its own.
type Finiteness int

const (
	// Continuous runs until stopped.
	Continuous Finiteness = iota
	// OneShot ends after the first complete sweep.
	OneShot
	// Finite ends after a given number of sweeps.
	Finite
)

func (f Finiteness) String() string {
	switch f {
	case Continuous:
		return "continuous"
	case OneShot:
		return "one-shot"
	case Finite:
		return "finite"
	}
	return fmt.Sprintf("Finiteness(%d)", int(f))
}

// Lifecycle tracks Init and Close.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Initialized
	Released
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Released:
		return "released"
	}
	return fmt.Sprintf("Lifecycle(%d)", int(l))
}

// Status is a copy of every lifecycle axis of a State. Each exclusive group
// is a single field, so an impossible combination such as "stopped and
// running" cannot be represented.
type Status struct {
	Run        RunState
	Finiteness Finiteness
	Lifecycle  Lifecycle

	Exiting             bool
	OutputSet           bool
	SweepStarted        bool
	BypassFFT           bool
	NormalizedTimestamp bool
}

// configurable reports whether tuning table, output and transform may be
// changed.
func (st Status) configurable() bool {
	return st.Lifecycle == Initialized && st.Run == Stopped
}

func (st Status) String() string {
	return fmt.Sprintf("%s/%s/%s exiting=%t output=%t started=%t bypass=%t normalized=%t",
		st.Lifecycle, st.Run, st.Finiteness, st.Exiting, st.OutputSet, st.SweepStarted, st.BypassFFT, st.NormalizedTimestamp)
}
