package jobengine

import "context"

// Interpreter is JobEngine's LLM post-hook: given a
// completed run, decides the job's next status, process log, and
// next_run_time. Implemented against an LLM provider outside this
// package so JobEngine stays provider-agnostic.
type Interpreter interface {
	Interpret(ctx context.Context, req InterpretRequest) (*InterpretResult, error)
}
