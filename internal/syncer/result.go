package syncer

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tillq/pkg/enums"
)

// State is the engine's drain lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateDraining         State = "draining"
	StateIdleWithFailures State = "idle_with_failures"
)

// Failure describes one operation that stayed queued after a drain.
type Failure struct {
	OperationID uuid.UUID
	Action      enums.OperationAction
	Resource    string
	Err         error
}

func (f Failure) Error() string {
	return fmt.Sprintf("operation %s (%s %s): %v", f.OperationID, f.Action, f.Resource, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Result summarises one drain.
type Result struct {
	Succeeded int
	Failed    int
	Deferred  int
	Failures  []Failure
}

// Attempted counts operations the engine handed to an executor.
func (r Result) Attempted() int {
	return r.Succeeded + r.Failed
}

// Err combines every per-operation failure, or returns nil for a clean drain.
func (r Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}
