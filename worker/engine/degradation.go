package engine

import "fmt"

type Step string

const (
	StepOracle     Step = "oracle_failure"
	StepNeural     Step = "neural_codec_failure"
	// StepAllocation means the partitioned artifact came out larger than a uniform
	// encode, which was kept instead.
	StepAllocation Step = "allocation_fallback"
)

// Degradation is the outcome of an adaptive step that failed without failing the task.
// The engine records it in the report and continues on the reduced path.
type Degradation struct {
	Step  Step
	Cause error
}

func (d *Degradation) String() string {
	return fmt.Sprintf("%s: %v", d.Step, d.Cause)
}
