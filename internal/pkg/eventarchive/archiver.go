// Package eventarchive exports the webhook event journal to object storage.
package eventarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/models"
)

const pageSize = 500

// EventSource pages through journaled webhook events in id order.
type EventSource interface {
	ListEventsBefore(ctx context.Context, before time.Time, afterID uint, limit int) ([]models.StripeEvent, error)
}

// Result summarizes one archive run.
type Result struct {
	Key    string
	Events int
	Bytes  int
}

// Archiver writes every event received before a cutoff into one JSON lines
// object. Archived rows stay in the database.
type Archiver struct {
	source   EventSource
	uploader Uploader
	prefix   string
	now      func() time.Time
}

// NewArchiver creates an archiver. An empty prefix uses "stripe-events".
func NewArchiver(source EventSource, uploader Uploader, prefix string) *Archiver {
	return &Archiver{source: source, uploader: uploader, prefix: prefix, now: time.Now}
}

// Run archives events received before the cutoff. Nothing is uploaded when
// there are no such events.
func (a *Archiver) Run(ctx context.Context, before time.Time) (*Result, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	count := 0
	var afterID uint
	for {
		page, err := a.source.ListEventsBefore(ctx, before, afterID, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for i := range page {
			if err := enc.Encode(&page[i]); err != nil {
				return nil, fmt.Errorf("encode event %d: %w", page[i].ID, err)
			}
			afterID = page[i].ID
		}
		count += len(page)
		if len(page) < pageSize {
			break
		}
	}

	result := &Result{Events: count, Bytes: buf.Len()}
	if count == 0 {
		log.Info().Time("before", before).Msg("No webhook events to archive")
		return result, nil
	}

	result.Key = ObjectKey(a.prefix, before, a.now())
	if err := a.uploader.Upload(ctx, result.Key, buf.Bytes()); err != nil {
		return nil, err
	}
	log.Info().
		Str("key", result.Key).
		Int("events", result.Events).
		Int("bytes", result.Bytes).
		Msg("Webhook events archived")
	return result, nil
}
