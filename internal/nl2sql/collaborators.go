package nl2sql

import (
	"context"
	"errors"

	"github.com/dbanalyst/dbanalyst/internal/schema"
	"github.com/dbanalyst/dbanalyst/internal/tools"
)

var ErrDisabled = errors.New("ai assistance is disabled")

type PlanRequest struct {
	Text          string
	DefaultSchema string
}

type GenerateRequest struct {
	Text    string
	Dialect string
	Tables  []schema.Descriptor
}

// Planner picks the command that serves a request.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (tools.Command, error)
}

// Generator returns raw model output. Callers pass it through
// ParseGeneratedSQL before guarding it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type Presenter interface {
	Present(ctx context.Context, question, payload string) (string, error)
}

type DocumentAnswerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

// Disabled stands in for every collaborator when no model is configured.
type Disabled struct{}

func (Disabled) Plan(context.Context, PlanRequest) (tools.Command, error) {
	return tools.Command{}, ErrDisabled
}

func (Disabled) Generate(context.Context, GenerateRequest) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Present(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Answer(context.Context, string) (string, error) {
	return "", ErrDisabled
}
