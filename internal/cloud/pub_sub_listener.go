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

// Package cloud provides the Google Cloud integration layer. This file is the
// bridge from Pub/Sub into the workflow framework: a listener pulls messages
// from one subscription and runs each through an attached command chain. The
// message is acked only when the chain finishes clean; a failed chain leaves
// the message to redeliver under the subscription's retry policy, which is
// what makes the event-triggered embedding sync at-least-once.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
)

// PubSubListener binds one subscription to one processing command.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener on the given subscription. The command
// may be nil at construction; setup attaches the chain once it exists.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (*PubSubListener, error) {
	return &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}, nil
}

// SetCommand attaches the processing command. The first attachment wins so a
// configured listener cannot be silently rebound.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts receiving in a background goroutine until the context is
// canceled. Each message runs inside its own trace span and a fresh chain
// context with the raw payload as the chain input.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.InfoContext(ctx, "listening for messages", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")
		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			span.SetAttributes(attribute.String("msg", string(msg.Data)))

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
			} else {
				span.SetStatus(codes.Error, "failed")
				for name, chainErr := range chainCtx.GetErrors() {
					slog.ErrorContext(spanCtx, "error executing chain",
						"command", name, "error", chainErr)
				}
				// No ack and no nack: the message redelivers after its
				// deadline per the subscription's retry policy.
			}
			span.End()
		})
		if err != nil {
			slog.ErrorContext(ctx, "error receiving messages",
				"subscription", m.subscription.String(), "error", err)
		}
	}()
}
