// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package slacklog ships ERROR+ log lines to a Slack incoming webhook.
// It is a logging.Sink: the core logger never blocks on Slack delivery,
// and a bounded channel sheds lines under sustained failure instead of
// backing up the logger's hot path.
package slacklog

import (
	"sync"
	"sync/atomic"

	"github.com/slack-go/slack"

	"coco/internal/logging"
)

// Rule matches a log line prefix (matching spec.md's "slack_rules" map
// of prefix-to-channel routing) to the Slack channel it should post to.
type Rule struct {
	Prefix  string
	Channel string
}

// Shipper is a bounded async forwarder of log lines to a Slack webhook.
type Shipper struct {
	webhookURL string
	rules      []Rule
	lines      chan line
	wg         sync.WaitGroup
	stopped    uint32
	onError    func(error) // overridable in tests; defaults to a no-op
}

type line struct {
	level logging.Level
	text  string
}

// New constructs a Shipper posting to webhookURL, buffering up to
// capacity lines before Log starts dropping new lines.
func New(webhookURL string, rules []Rule, capacity int) *Shipper {
	if capacity <= 0 {
		capacity = 256
	}
	s := &Shipper{
		webhookURL: webhookURL,
		rules:      rules,
		lines:      make(chan line, capacity),
		onError:    func(error) {},
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Log implements logging.Sink. Full channel: the line is dropped rather
// than blocking the caller's log statement.
func (s *Shipper) Log(level logging.Level, text string) {
	if atomic.LoadUint32(&s.stopped) == 1 {
		return
	}
	select {
	case s.lines <- line{level: level, text: text}:
	default:
	}
}

// Stop closes the intake channel and waits for the drain goroutine to
// flush whatever was already buffered.
func (s *Shipper) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	close(s.lines)
	s.wg.Wait()
}

func (s *Shipper) drain() {
	defer s.wg.Done()
	for l := range s.lines {
		msg := &slack.WebhookMessage{Text: l.text, Channel: s.channelFor(l.text)}
		if err := slack.PostWebhook(s.webhookURL, msg); err != nil {
			s.onError(err)
		}
	}
}

func (s *Shipper) channelFor(text string) string {
	channel, longest := "", 0
	for _, r := range s.rules {
		if len(r.Prefix) > longest && len(text) >= len(r.Prefix) && text[:len(r.Prefix)] == r.Prefix {
			channel, longest = r.Channel, len(r.Prefix)
		}
	}
	return channel
}
