// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook defines the notification surface background services use
// to report events (certificate validity, discovery failures) to an
// operator-configured collector. The delivery transport itself is an
// external collaborator; this package only defines the shape and a
// logging-only default Sender so callers always have somewhere to send.
package webhook

import (
	"sync"

	"go.uber.org/zap"
)

// Category classifies what kind of event a Notification reports.
type Category string

const (
	// CategoryTLSValidity reports a certificate nearing expiry or not yet valid.
	CategoryTLSValidity Category = "TlsValidity"
	// CategoryServiceDiscoverFail reports a backend discovery refresh failure.
	CategoryServiceDiscoverFail Category = "ServiceDiscoverFail"
)

// Level is the severity of a Notification.
type Level string

const (
	LevelInfo Level = "Info"
	LevelWarn Level = "Warn"
	LevelError Level = "Error"
)

// Notification is a single webhook event.
type Notification struct {
	Category Category `json:"category"`
	Level Level `json:"level"`
	Msg string `json:"msg"`
}

// Sender delivers a Notification somewhere. Implementations must not block
// the caller indefinitely; background services treat send failures as
// non-fatal.
type Sender interface {
	Send(Notification)
}

// LoggingSender is the default Sender: it writes the notification through a
// zap logger and never fails. Real deployments replace this with a Sender
// that posts to an HTTP collector; that transport is out of scope here.
type LoggingSender struct {
	logger *zap.Logger
}

// NewLoggingSender returns a Sender backed by the given logger, or the
// global zap logger if nil.
func NewLoggingSender(logger *zap.Logger) *LoggingSender {
	if logger == nil {
		logger = zap.L()
	}
	return &LoggingSender{logger: logger.Named("webhook")}
}

func (s *LoggingSender) Send(n Notification) {
	fields := []zap.Field{
		zap.String("category", string(n.Category)),
		zap.String("level", string(n.Level)),
	}
	switch n.Level {
	case LevelError:
		s.logger.Error(n.Msg, fields...)
	case LevelWarn:
		s.logger.Warn(n.Msg, fields...)
	default:
		s.logger.Info(n.Msg, fields...)
	}
}

var (
	defaultMu sync.RWMutex
	defaultSender Sender = NewLoggingSender(nil)
)

// SetDefault installs the process-wide default Sender used by Send.
func SetDefault(s Sender) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if s == nil {
		s = NewLoggingSender(nil)
	}
	defaultSender = s
}

// Send dispatches n through the process-wide default Sender.
func Send(n Notification) {
	defaultMu.RLock()
	s := defaultSender
	defaultMu.RUnlock()
	s.Send(n)
}
