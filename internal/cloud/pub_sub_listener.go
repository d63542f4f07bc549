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

package cloud

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
)

// PubSubListener feeds the messages of one subscription into a command. A message is
// acked only when the command records no error; otherwise it is left to expire and be
// redelivered, or dead-lettered by the subscription policy.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches the command if none is set yet.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetMaxExtension sets how long the client keeps extending the ack deadline of a
// message that is still being processed. It must cover the longest command run.
func (m *PubSubListener) SetMaxExtension(d time.Duration) {
	m.subscription.ReceiveSettings.MaxExtension = d
}

// MaxExtension returns the lease extension limit used by Listen.
func (m *PubSubListener) MaxExtension() time.Duration {
	return m.subscription.ReceiveSettings.MaxExtension
}

// Listen receives messages in the background until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")
		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("message_id", msg.ID))

			chainCtx := cor.NewContext(spanCtx, string(msg.Data))
			defer chainCtx.Close()
			m.command.Execute(chainCtx)

			if chainCtx.HasErrors() {
				span.SetStatus(codes.Error, "failed")
				for name, e := range chainCtx.GetErrors() {
					slog.Error("error executing chain", "message_id", msg.ID, "command", name, "error", e)
				}
				return
			}
			span.SetStatus(codes.Ok, "success")
			msg.Ack()
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}
