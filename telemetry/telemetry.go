package telemetry

import (
	"context"
	"time"
)

type Kind string

const (
	KindIngest   Kind = "ingest"
	KindBackfill Kind = "backfill"
)

// Event describes one finished ingestion run or backfill.
type Event struct {
	Kind     Kind      `json:"kind" msgpack:"kind"`
	At       time.Time `json:"at" msgpack:"at"`
	From     time.Time `json:"from" msgpack:"from"`
	To       time.Time `json:"to" msgpack:"to"`
	Provider string    `json:"provider,omitempty" msgpack:"provider,omitempty"`
	Fetched  int       `json:"fetched" msgpack:"fetched"`
	Ingested int64     `json:"ingested" msgpack:"ingested"`
	Skipped  int       `json:"skipped" msgpack:"skipped"`
	Count    int       `json:"count" msgpack:"count"`
	Outcome  string    `json:"outcome,omitempty" msgpack:"outcome,omitempty"`
	Error    string    `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Publisher delivers events on a best effort basis, it never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}
