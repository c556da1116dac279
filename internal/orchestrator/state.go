package orchestrator

import (
	"sync"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// State is the processing state of one file.
type State string

const (
	StatePending     State = "pending"
	StateParsed      State = "parsed"
	StateTranslating State = "translating"
	StateValidating  State = "validating"
	StateRepairing   State = "repairing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// transitions lists the legal successor states. Files move strictly forward;
// the only loop is validating -> repairing -> validating.
var transitions = map[State][]State{
	StatePending:     {StateParsed, StateFailed},
	StateParsed:      {StateTranslating, StateDone, StateFailed},
	StateTranslating: {StateValidating, StateFailed},
	StateValidating:  {StateRepairing, StateDone, StateFailed},
	StateRepairing:   {StateValidating, StateFailed},
}

// fileTask tracks one file through the pipeline. The done channel is closed
// exactly once when the file reaches a terminal outcome; dependents block on
// it before starting their own translation.
type fileTask struct {
	path string
	done chan struct{}

	mu               sync.Mutex
	state            State
	outcome          types.FileOutcome
	translatedRuns   int
	untranslatedRuns int
	repairAttempts   int
}

func newFileTask(path string) *fileTask {
	return &fileTask{path: path, state: StatePending, done: make(chan struct{})}
}

// to advances the task state, logging illegal transitions instead of
// panicking; a wrong transition is a programming error but must not take the
// run down.
func (t *fileTask) to(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	legal := false
	for _, s := range transitions[t.state] {
		if s == next {
			legal = true
			break
		}
	}
	if !legal {
		logger.Error("illegal state transition", nil,
			logger.String("file", t.path),
			logger.String("from", string(t.state)),
			logger.String("to", string(next)))
	}
	logger.Debug("file state change",
		logger.String("file", t.path),
		logger.String("from", string(t.state)),
		logger.String("to", string(next)))
	t.state = next
}

// finish records the terminal outcome and releases dependents.
func (t *fileTask) finish(outcome types.FileOutcome) {
	t.mu.Lock()
	t.outcome = outcome
	t.mu.Unlock()
	close(t.done)
}

// result returns the terminal outcome; valid only after done is closed.
func (t *fileTask) result() types.FileOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}
