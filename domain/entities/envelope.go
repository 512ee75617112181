package entities

// Envelope is the uniform result wrapper returned by every operation.
// Exactly one of Data or Error is set.
type Envelope struct {
	Success     bool         `json:"success"`
	Data        any          `json:"data,omitempty"`
	Error       *ErrorBody   `json:"error,omitempty"`
	SideEffects []SideEffect `json:"sideEffects,omitempty"`
	Meta        *Meta        `json:"meta,omitempty"`
}

// ErrorBody is the failure half of an Envelope
type ErrorBody struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Stage   Stage     `json:"stage,omitempty"`
	Tried   []string  `json:"tried,omitempty"`
}

// SideEffect reports a state change the caller did not ask for directly
type SideEffect struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Detail string `json:"detail,omitempty"`
}

// Meta carries diagnostics about how the result was produced
type Meta struct {
	RequestID  string            `json:"requestId,omitempty"`
	Platform   Platform          `json:"platform,omitempty"`
	Operation  Operation         `json:"operation,omitempty"`
	Attempts   int               `json:"attempts,omitempty"`
	DurationMS int64             `json:"durationMs,omitempty"`
	Strategies map[string]string `json:"strategies,omitempty"`
}

// Succeed - builds a success envelope
func Succeed(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail - builds a failure envelope from any error
func Fail(err error) Envelope {
	opErr := AsOperationError(err)
	return Envelope{
		Success: false,
		Error: &ErrorBody{
			Kind:    opErr.Kind,
			Message: opErr.Message,
			Stage:   opErr.Stage,
			Tried:   opErr.Tried,
		},
	}
}
