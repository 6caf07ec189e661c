package session

import "fmt"

// State is the position of the controller in a capture-print session.
type State int

const (
	Ready        State = iota // waiting for the button
	Feedback                  // pre-capture blinking
	Capturing                 // counter reserved, still being taken
	Printing                  // job submitted, waiting for the printer
	Error                     // recoverable failure, going back to Ready
	ShuttingDown              // terminal
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Feedback:
		return "FEEDBACK"
	case Capturing:
		return "CAPTURING"
	case Printing:
		return "PRINTING"
	case Error:
		return "ERROR"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
