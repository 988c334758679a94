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

// Package chat implements the conversation orchestrator. This file holds the
// conversation service: session lifecycle plus the sendMessage entry point
// that runs a turn and persists the resulting user/assistant pair.
package chat

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// Service manages chat sessions.
type Service struct {
	conversations store.ConversationStore
	orchestrator  *Orchestrator
}

// NewService wires the conversation service.
func NewService(conversations store.ConversationStore, orchestrator *Orchestrator) *Service {
	return &Service{conversations: conversations, orchestrator: orchestrator}
}

// CreateConversation starts an empty session, optionally scoped to one
// campaign.
func (s *Service) CreateConversation(ctx context.Context, campaignID string) (*model.Conversation, error) {
	conversation := model.NewConversation(campaignID)
	if err := s.conversations.Put(ctx, conversation); err != nil {
		return nil, fmt.Errorf("persisting new conversation: %w", err)
	}
	return conversation, nil
}

// GetConversation returns one session by id.
func (s *Service) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.conversations.Get(ctx, id)
}

// ListConversations returns sessions, most recently updated first, optionally
// filtered to one campaign.
func (s *Service) ListConversations(ctx context.Context, campaignID string, limit int) ([]*model.Conversation, error) {
	return s.conversations.List(ctx, campaignID, limit)
}

// DeleteConversation removes a session.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	return s.conversations.Delete(ctx, id)
}

// SendMessage runs one turn: the user text goes through the orchestrator, and
// on success the conversation grows by exactly two messages — the user turn
// and the assistant turn carrying its retrieved-context snapshot. On error
// the conversation is left untouched; ErrMaxIterations and ErrUnknownFunction
// pass through for callers to surface distinctly.
func (s *Service) SendMessage(ctx context.Context, conversationID, text string) (*model.Conversation, *model.Message, error) {
	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	userMessage := model.NewUserMessage(text)
	assistantMessage, _, err := s.orchestrator.RunTurn(ctx, conversation, text)
	if err != nil {
		return nil, nil, err
	}

	conversation.AppendTurn(userMessage, assistantMessage)
	if err := s.conversations.Put(ctx, conversation); err != nil {
		return nil, nil, fmt.Errorf("persisting conversation %s: %w", conversationID, err)
	}
	return conversation, assistantMessage, nil
}
