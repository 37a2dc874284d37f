// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package importer

import (
	"encoding/json"
	"math"
)

// EventType discriminates the events of an import stream.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message of an import stream. Which fields are meaningful
// depends on Type; MarshalJSON writes only those.
type Event struct {
	Type           EventType
	RunID          string
	Current        int
	Total          int
	Imported       int
	Updated        int
	Skipped        int
	ErrorCount     int
	ProcessingRate float64
	CurrentProduct string
	Errors         []string
	Message        string

	// Canceled marks an error event of a run stopped by its context.
	Canceled bool
}

// ProgressEvent reports the running totals after a chunk.
func ProgressEvent(res *Result, currentProduct string) Event {
	return Event{
		Type:           EventProgress,
		RunID:          res.RunID,
		Current:        res.Processed,
		Total:          res.Total,
		Imported:       res.Imported,
		Updated:        res.Updated,
		Skipped:        res.Skipped,
		ErrorCount:     res.ErrorCount,
		ProcessingRate: res.Rate(),
		CurrentProduct: currentProduct,
	}
}

// CompleteEvent is the terminal event of a successful run.
func CompleteEvent(res *Result) Event {
	ev := ProgressEvent(res, "")
	ev.Type = EventComplete
	ev.Errors = res.Errors
	return ev
}

// ErrorEvent is the terminal event of a run that could not finish.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Message: err.Error()}
}

func (e Event) withCounts(res *Result) Event {
	e.RunID = res.RunID
	e.Current = res.Processed
	e.Total = res.Total
	e.Imported = res.Imported
	e.Updated = res.Updated
	e.Skipped = res.Skipped
	e.ErrorCount = res.ErrorCount
	return e
}

type progressJSON struct {
	Type           EventType `json:"type"`
	RunID          string    `json:"runId,omitempty"`
	Current        int       `json:"current"`
	Total          int       `json:"total"`
	Imported       int       `json:"imported"`
	Updated        int       `json:"updated"`
	Skipped        int       `json:"skipped"`
	Errors         int       `json:"errors"`
	ProcessingRate float64   `json:"processingRate"`
	CurrentProduct string    `json:"currentProduct"`
}

type completeJSON struct {
	Type           EventType `json:"type"`
	RunID          string    `json:"runId,omitempty"`
	Total          int       `json:"total"`
	Imported       int       `json:"imported"`
	Updated        int       `json:"updated"`
	Skipped        int       `json:"skipped"`
	Errors         []string  `json:"errors"`
	ErrorCount     int       `json:"errorCount"`
	ProcessingRate float64   `json:"processingRate"`
}

type errorJSON struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message"`
	RunID    string    `json:"runId,omitempty"`
	Current  int       `json:"current"`
	Imported int       `json:"imported"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
}

// MarshalJSON writes the wire shape of the event's type. The errors field
// is a running count on progress events and the message list on the
// complete event.
func (e Event) MarshalJSON() ([]byte, error) {
	rate := math.Round(e.ProcessingRate*10) / 10
	switch e.Type {
	case EventComplete:
		errs := e.Errors
		if errs == nil {
			errs = []string{}
		}
		return json.Marshal(completeJSON{
			Type: e.Type, RunID: e.RunID, Total: e.Total,
			Imported: e.Imported, Updated: e.Updated, Skipped: e.Skipped,
			Errors: errs, ErrorCount: e.ErrorCount, ProcessingRate: rate,
		})
	case EventError:
		return json.Marshal(errorJSON{
			Type: e.Type, Message: e.Message, RunID: e.RunID, Current: e.Current,
			Imported: e.Imported, Updated: e.Updated, Skipped: e.Skipped,
		})
	}
	return json.Marshal(progressJSON{
		Type: EventProgress, RunID: e.RunID, Current: e.Current, Total: e.Total,
		Imported: e.Imported, Updated: e.Updated, Skipped: e.Skipped,
		Errors: e.ErrorCount, ProcessingRate: rate, CurrentProduct: e.CurrentProduct,
	})
}
