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

// Package model defines the core data structures for the application.
// This file contains the chat-session documents: a Conversation is an ordered,
// strictly alternating list of user/assistant messages, where each assistant
// message records the retrieved-scene snapshot that justified its answer.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. A conversation alternates strictly between the two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageContext records what was retrieved to ground an assistant reply.
// It is stored with the message so answers remain auditable after the index
// has moved on.
type MessageContext struct {
	Scenes []*Scene `json:"scenes" firestore:"scenes"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID        string    `json:"id" firestore:"id"`
	Role      string    `json:"role" firestore:"role"`
	Content   string    `json:"content" firestore:"content"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	// Context is only populated on assistant messages.
	Context *MessageContext `json:"context,omitempty" firestore:"context"`
}

// Conversation is one chat session. CampaignID, when set, scopes every
// retrieval performed on behalf of this conversation; when empty the session
// searches across all campaigns.
type Conversation struct {
	ID         string     `json:"id" firestore:"id"`
	CampaignID string     `json:"campaign_id,omitempty" firestore:"campaign_id"`
	Messages   []*Message `json:"messages" firestore:"messages"`
	CreatedAt  time.Time  `json:"created_at" firestore:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" firestore:"updated_at"`
	// Revision increments on every appended turn. Writes are last-write-wins
	// at the storage layer; the revision lets callers detect a lost update
	// after the fact.
	Revision int64 `json:"revision" firestore:"revision"`
}

// NewConversation creates an empty conversation, optionally scoped to a
// campaign.
func NewConversation(campaignID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Messages:   make([]*Message, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewUserMessage creates a user turn with a fresh id and timestamp.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant turn carrying the retrieved-scene
// snapshot used to produce it.
func NewAssistantMessage(content string, scenes []*Scene) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Context:   &MessageContext{Scenes: scenes},
	}
}

// AppendTurn appends a user/assistant pair and bumps the bookkeeping fields.
func (c *Conversation) AppendTurn(user, assistant *Message) {
	c.Messages = append(c.Messages, user, assistant)
	c.UpdatedAt = time.Now().UTC()
	c.Revision++
}
