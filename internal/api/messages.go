// Package api defines the JSON payloads exchanged with diagnostics clients.
package api

import (
	"github.com/skobkin/frametimings-web/internal/adapter"
	"github.com/skobkin/frametimings-web/internal/timings"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type            string        `json:"type"`
	TickIntervalMS  int           `json:"tick_interval_ms"`
	HistoryCapacity int           `json:"history_capacity"`
	Enabled         bool          `json:"enabled"`
	Stages          []string      `json:"stages"`
	Adapter         *adapter.Info `json:"adapter,omitempty"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(tickIntervalMS, historyCapacity int, enabled bool, adapterInfo *adapter.Info) HelloMessage {
	stages := make([]string, 0, timings.StageCount)
	for _, stage := range timings.Stages() {
		stages = append(stages, stage.String())
	}
	return HelloMessage{
		Type:            "hello",
		TickIntervalMS:  tickIntervalMS,
		HistoryCapacity: historyCapacity,
		Enabled:         enabled,
		Stages:          stages,
		Adapter:         adapterInfo,
	}
}

// HistoryMessage carries the retained frames, oldest first.
type HistoryMessage struct {
	Type    string                 `json:"type"`
	Samples []timings.FrameTimings `json:"samples"`
}

// NewHistoryMessage constructs a history payload.
func NewHistoryMessage(samples []timings.FrameTimings) HistoryMessage {
	if samples == nil {
		samples = []timings.FrameTimings{}
	}
	return HistoryMessage{Type: "history", Samples: samples}
}

// SampleMessage wraps a single finished frame for transport.
type SampleMessage struct {
	Type   string               `json:"type"`
	Sample timings.FrameTimings `json:"sample"`
}

// NewSampleMessage constructs a sample payload.
func NewSampleMessage(sample timings.FrameTimings) SampleMessage {
	return SampleMessage{Type: "sample", Sample: sample}
}

// EnabledMessage reports the collection state.
type EnabledMessage struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// EnabledState is the REST body for reading and toggling collection.
type EnabledState struct {
	Enabled *bool `json:"enabled"`
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// SetEnabledMessage asks the server to toggle collection.
type SetEnabledMessage struct {
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
