// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// NewPubSub creates the in-process channel-backed pub/sub shared by
// publishers and the router.
func NewPubSub(buffer int64, logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
	}, NewWatermillLogger(logger))
}

// Publisher publishes analysis lifecycle events.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a Watermill publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// PublishAnalysisCompleted publishes an analysis-completed event.
func (p *Publisher) PublishAnalysisCompleted(e *AnalysisCompleted) error {
	return p.publish(TopicAnalysisCompleted, e)
}

// PublishAudioDeleted publishes an audio-deleted event.
func (p *Publisher) PublishAudioDeleted(e *AudioDeleted) error {
	return p.publish(TopicAudioDeleted, e)
}

func (p *Publisher) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
