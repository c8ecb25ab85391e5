package harness

import "fmt"

// Phase is the coordinator's position within one logical time step
type Phase int

const (
	// Idle waits for the next edit batch
	Idle Phase = iota
	// EditsApplied has handed the step's edits to their lanes
	EditsApplied
	// Advancing signals every worker to move to the new time
	Advancing
	// Draining runs the coordinator's own lane to quiescence
	Draining
	// ResultsCollected has merged every lane's delta
	ResultsCollected
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case EditsApplied:
		return "edits-applied"
	case Advancing:
		return "advancing"
	case Draining:
		return "draining"
	case ResultsCollected:
		return "results-collected"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
