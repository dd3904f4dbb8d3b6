package decomp

import "fmt"

// Stage names a state of the fitting pipeline
type Stage string

const (
	StageInit          Stage = "INIT"
	StageContinuousOpt Stage = "CONTINUOUS_OPT"
	StageDiscreteOpt   Stage = "DISCRETE_OPT"
	StageFinalSolve    Stage = "FINAL_SOLVE"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)

// StageError records the stage in which a fit failed. It unwraps to the
// triggering error so errors.Is/As see shapelet.ErrDomain and friends.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("decomp: %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
