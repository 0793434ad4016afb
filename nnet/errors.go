package nnet

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidConfiguration is the cause of every configuration error
// returned by Config.Validate and Train; test with errors.Is.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrNoViableRepetition is returned by BestRepetition when every
// repetition in a training result diverged.
var ErrNoViableRepetition = errors.New("no viable repetition")

// DimensionMismatchError reports an input whose length disagrees with the
// network topology.  It is raised before any computation touches the data.
type DimensionMismatchError struct {
	What string
	Want int
	Got  int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s has length %d, want %d", e.What, e.Got, e.Want)
}
