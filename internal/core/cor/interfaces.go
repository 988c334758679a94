// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (chain of responsibility) is the small workflow framework the
// background pipelines are built on: a workflow is a chain of named commands
// that share one mutable context, with per-command OpenTelemetry spans and
// counters. This file defines the interfaces; the base_*.go files hold the
// default implementations every concrete command embeds.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the reserved context keys the chain uses to pipe data:
// after each command runs, whatever it stored under CtxOut becomes the next
// command's CtxIn.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state for one workflow execution: a property bag for
// inter-command data, an error map keyed by command name, and the Go context
// carrying cancellation and trace information.
type Context interface {
	SetContext(ctx context.Context)
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records a command failure under the command's name.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
}

// Executable is anything with a single unit of work driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic, reusable workflow step. Commands must be safe for
// concurrent Execute calls: one command instance is shared across workflow
// runs.
type Command interface {
	Executable

	GetName() string
	// GetInputParam and GetOutputParam name the context keys this command
	// reads from and writes to; they default to CtxIn/CtxOut so the chain can
	// pipe commands together.
	GetInputParam() string
	GetOutputParam() string
	// IsExecutable is the precondition check the chain runs before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands. A Chain is itself a Command, so
// chains nest.
type Chain interface {
	Command

	// ContinueOnFailure controls whether the chain keeps executing after a
	// command records an error. Default is to stop.
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
