package report

import (
	"errors"
	"fmt"
)

// Stage names a step of the model path.
type Stage string

const (
	StageCollect Stage = "collect"
	StageInvoke  Stage = "invoke"
	StageRepair  Stage = "repair"
	StageRetry   Stage = "retry"
)

// ErrUnrepairable is returned when repair finds no object in model output.
var ErrUnrepairable = errors.New("invalid JSON from model")

// PipelineError tags an error with the stage that produced it.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *PipelineError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Stage: stage, Err: err}
}

// Result is the outcome of a stage. Once it holds an error, Map is a no-op.
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func Fail[T any](stage Stage, err error) Result[T] { return Result[T]{Err: stageErr(stage, err)} }

// Recover gives a failed result a second chance. The first error is kept when
// the recovery also fails.
func (r Result[T]) Recover(fn func(error) (T, error)) Result[T] {
	if r.Err == nil {
		return r
	}
	v, err := fn(r.Err)
	if err != nil {
		return Result[T]{Value: r.Value, Err: r.Err}
	}
	return Ok(v)
}

// Map converts a successful value into another type.
func Map[T, U any](r Result[T], stage Stage, fn func(T) (U, error)) Result[U] {
	if r.Err != nil {
		return Result[U]{Err: r.Err}
	}
	v, err := fn(r.Value)
	if err != nil {
		return Fail[U](stage, err)
	}
	return Ok(v)
}
