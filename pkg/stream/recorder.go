package stream

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event is a recorded sink write with its payload already encoded.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closes int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closes > 0 {
		return ErrClosed
	}
	r.events = append(r.events, Event{Name: event, Data: data})
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Closes reports how many times Close was called.
func (r *Recorder) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// Decode unmarshals the payload of the first event called name into v.
func (r *Recorder) Decode(name string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Name == name {
			return json.Unmarshal(e.Data, v)
		}
	}
	return fmt.Errorf("no %s event recorded", name)
}
