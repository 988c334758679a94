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

// Package chat implements the conversation orchestrator. This file runs one
// turn: retrieve context for the user's message, hand it to the language
// model, execute the tool calls the model requests, and return the final
// assistant message with its retrieved-scene snapshot. The function-calling
// loop is hard-bounded; a model that keeps asking for tools fails the turn
// loudly instead of looping or silently truncating.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
)

var (
	// ErrMaxIterations reports that the model exceeded the function-call
	// budget for a single turn. Callers must surface this distinctly from a
	// normal answer.
	ErrMaxIterations = errors.New("function-call iteration limit exceeded")

	// ErrUnknownFunction reports a model request for a tool that is not in
	// the declared set.
	ErrUnknownFunction = errors.New("unknown function requested")
)

// fallbackAnswer is returned when generation itself fails. The turn still
// completes with a non-empty assistant message so the conversation is never
// left dangling on an upstream hiccup.
const fallbackAnswer = "I wasn't able to put together an answer just now. Please try asking again in a moment."

// Generator is the language-model boundary. The production implementation is
// the quota-aware Vertex AI wrapper, constructed with the system instruction
// and the toolset's declarations in its generation config; tests substitute a
// scripted fake.
type Generator interface {
	GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

// Orchestrator runs conversation turns.
type Orchestrator struct {
	generator     Generator
	searcher      Searcher
	toolset       *Toolset
	contextSize   int
	historyTurns  int
	maxIterations int
}

// NewOrchestrator wires an orchestrator. contextSize is how many retrieved
// scenes seed the prompt, historyTurns how many prior turns are replayed, and
// maxIterations the function-call budget per user message.
func NewOrchestrator(generator Generator, searcher Searcher, toolset *Toolset, contextSize, historyTurns, maxIterations int) *Orchestrator {
	return &Orchestrator{
		generator:     generator,
		searcher:      searcher,
		toolset:       toolset,
		contextSize:   contextSize,
		historyTurns:  historyTurns,
		maxIterations: maxIterations,
	}
}

// RunTurn executes one user message against a conversation and returns the
// assistant reply. The returned Turn records the terminal state and how many
// tool round trips ran; it is populated even on error.
func (o *Orchestrator) RunTurn(ctx context.Context, conversation *model.Conversation, userText string) (*model.Message, *Turn, error) {
	turn := &Turn{State: StateRetrieving}

	results, err := o.searcher.QueryScenes(ctx, userText, search.Options{
		CampaignID: conversation.CampaignID,
		Limit:      o.contextSize,
	})
	if err != nil {
		turn.State = StateFailed
		return nil, turn, fmt.Errorf("building retrieval context: %w", err)
	}
	contextScenes := make([]*model.Scene, 0, len(results))
	for _, result := range results {
		contextScenes = append(contextScenes, result.Scene)
	}

	contents := o.buildPrompt(conversation, results, userText)

	for {
		turn.State = StateGenerating
		response, err := o.generator.GenerateContent(ctx, contents)
		if err != nil {
			slog.WarnContext(ctx, "generation failed, answering with fallback", "error", err)
			turn.State = StateResponded
			return model.NewAssistantMessage(fallbackAnswer, contextScenes), turn, nil
		}

		text, call := extractReply(response)
		if call == nil {
			if text == "" {
				slog.WarnContext(ctx, "model returned an empty candidate, answering with fallback")
				text = fallbackAnswer
			}
			turn.State = StateResponded
			return model.NewAssistantMessage(text, contextScenes), turn, nil
		}

		turn.State = StateFunctionCallRequested
		if turn.Iterations >= o.maxIterations {
			turn.State = StateFailed
			return nil, turn, fmt.Errorf("%w: budget of %d spent", ErrMaxIterations, o.maxIterations)
		}

		turn.State = StateExecuting
		turn.Iterations++
		result, err := o.toolset.Execute(ctx, call.Name, call.Args, conversation.CampaignID)
		if errors.Is(err, ErrUnknownFunction) {
			turn.State = StateFailed
			return nil, turn, err
		}
		if err != nil {
			// Collaborator failures go back to the model as a structured
			// error so it can answer from what it already has.
			slog.WarnContext(ctx, "tool call failed", "tool", call.Name, "error", err)
			result = map[string]any{"error": err.Error()}
		}

		contents = append(contents,
			&genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: call}},
			},
			&genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					Name:     call.Name,
					Response: result,
				}}},
			},
		)
	}
}

// buildPrompt assembles the model input: the last historyTurns prior turns,
// then the new user message prefixed with the retrieved-context block.
func (o *Orchestrator) buildPrompt(conversation *model.Conversation, results []*model.SearchResult, userText string) []*genai.Content {
	contents := make([]*genai.Content, 0, o.historyTurns*2+1)

	history := conversation.Messages
	if keep := o.historyTurns * 2; len(history) > keep {
		history = history[len(history)-keep:]
	}
	for _, message := range history {
		role := genai.RoleUser
		if message.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: message.Content}},
		})
	}

	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: formatContextBlock(results) + userText}},
	})
	return contents
}

// formatContextBlock renders the retrieved scenes as labeled blocks the model
// can cite by number. Empty retrieval yields an explicit statement rather
// than an absent section, so the model does not hallucinate footage.
func formatContextBlock(results []*model.SearchResult) string {
	var b strings.Builder
	if len(results) == 0 {
		b.WriteString("No scenes in the library matched this message.\n\n")
		return b.String()
	}
	b.WriteString("Retrieved scenes, most relevant first:\n")
	for i, result := range results {
		scene := result.Scene
		fmt.Fprintf(&b, "[Scene %d] id=%s video=%s time=%.1fs-%.1fs score=%.3f\n",
			i+1, scene.ID, result.Video.FileName, scene.StartTime, scene.EndTime, result.Score)
		if scene.Description != "" {
			fmt.Fprintf(&b, "  description: %s\n", scene.Description)
		}
		if scene.Analysis.Mood != "" {
			fmt.Fprintf(&b, "  mood: %s\n", scene.Analysis.Mood)
		}
		if len(scene.Analysis.VisualElements) > 0 {
			fmt.Fprintf(&b, "  elements: %s\n", strings.Join(scene.Analysis.VisualElements, ", "))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// extractReply pulls the first candidate apart: concatenated text and the
// first function call, if any. A nil response counts as empty.
func extractReply(response *genai.GenerateContentResponse) (string, *genai.FunctionCall) {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", nil
	}
	var text strings.Builder
	var call *genai.FunctionCall
	for _, part := range response.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil && call == nil {
			call = part.FunctionCall
		}
		text.WriteString(part.Text)
	}
	return strings.TrimSpace(text.String()), call
}
