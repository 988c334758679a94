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

// Package chat implements the conversation orchestrator: multi-turn chat over
// the scene library with retrieval-augmented generation and a bounded
// function-calling loop. This file makes the per-turn state machine explicit
// so the iteration bound and terminal conditions are testable without a live
// language model.
package chat

// TurnState is the phase a conversation turn is in. A turn always moves
// forward: Retrieving, Generating, then zero or more
// FunctionCallRequested/Executing/Generating cycles, ending in Responded or
// Failed.
type TurnState int

const (
	StateAwaitingUserMessage TurnState = iota
	StateRetrieving
	StateGenerating
	StateFunctionCallRequested
	StateExecuting
	StateResponded
	StateFailed
)

var stateNames = map[TurnState]string{
	StateAwaitingUserMessage:   "awaiting_user_message",
	StateRetrieving:            "retrieving",
	StateGenerating:            "generating",
	StateFunctionCallRequested: "function_call_requested",
	StateExecuting:             "executing",
	StateResponded:             "responded",
	StateFailed:                "failed",
}

func (s TurnState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the turn has finished, successfully or not.
func (s TurnState) Terminal() bool {
	return s == StateResponded || s == StateFailed
}

// Turn tracks the progress of one user message through the orchestrator:
// the current state and how many function-call round trips have executed.
type Turn struct {
	State      TurnState
	Iterations int
}
