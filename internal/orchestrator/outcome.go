package orchestrator

import (
	"encoding/json"

	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/tools"
)

type State string

const (
	StateReceived     State = "RECEIVED"
	StateValidated    State = "VALIDATED"
	StateDiscovery    State = "DISCOVERY"
	StateSQLGenerated State = "SQL_GENERATED"
	StateGuarded      State = "GUARDED"
	StateExecuted     State = "EXECUTED"
	StateRaw          State = "RAW"
	StatePresented    State = "PRESENTED"
	StateRejected     State = "REJECTED"
)

func (s State) Terminal() bool {
	return s == StateRaw || s == StatePresented || s == StateRejected
}

const (
	BlockedMessage = "The user request was blocked by the security filter."
	InvalidMessage = "Request was deemed invalid by the data agent."
)

// Outcome is everything one run produced, up to the state it stopped in.
type Outcome struct {
	State     State
	Trail     []State
	Request   string
	Command   tools.Command
	SQL       string
	Rows      executor.Result
	Discovery any
	Answer    string
	Message   string
}

func (o *Outcome) enter(state State) {
	o.State = state
	o.Trail = append(o.Trail, state)
}

func (o *Outcome) reject(message string) {
	o.Message = message
	o.enter(StateRejected)
}

func (o Outcome) Executed() bool {
	for _, state := range o.Trail {
		if state == StateExecuted {
			return true
		}
	}
	return false
}

// Data is the executed rows or the discovery result, whichever the run
// produced.
func (o Outcome) Data() any {
	if o.Executed() {
		if o.Rows == nil {
			return executor.Result{}
		}
		return o.Rows
	}
	return o.Discovery
}

// Payload renders the user-facing text for a terminal outcome.
func (o Outcome) Payload() string {
	switch o.State {
	case StateRejected:
		return indentJSON(map[string]string{"error": o.Message})
	case StateRaw:
		return indentJSON(o.Data())
	case StatePresented:
		return o.Answer
	default:
		return ""
	}
}

func indentJSON(value any) string {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return ""
	}
	return string(payload)
}
