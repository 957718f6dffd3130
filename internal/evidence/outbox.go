package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/balkashynov/dtr/internal/blob"
)

const outboxPrefix = "outbox/"

// Outbox holds encoded photos by sync key until they are uploaded.
// Entries survive restarts because they live in the blob store.
type Outbox struct {
	blobs blob.Store
}

// NewOutbox creates an outbox over blobs
func NewOutbox(blobs blob.Store) *Outbox {
	return &Outbox{blobs: blobs}
}

// Put queues p under key, replacing any earlier entry
func (o *Outbox) Put(ctx context.Context, key string, p *Payload) error {
	if err := o.blobs.Put(ctx, outboxPrefix+key, []byte(p.DataURL())); err != nil {
		return fmt.Errorf("queue evidence %q: %w", key, err)
	}
	return nil
}

// Get returns the queued payload, blob.ErrNotFound when there is none
func (o *Outbox) Get(ctx context.Context, key string) (*Payload, error) {
	data, err := o.blobs.Get(ctx, outboxPrefix+key)
	if err != nil {
		return nil, err
	}
	p, err := ParseDataURL(string(data))
	if err != nil {
		return nil, fmt.Errorf("read queued evidence %q: %w", key, err)
	}
	return p, nil
}

// Delete drops the entry for key
func (o *Outbox) Delete(ctx context.Context, key string) error {
	return o.blobs.Delete(ctx, outboxPrefix+key)
}

// Keys lists the sync keys with queued evidence
func (o *Outbox) Keys(ctx context.Context) ([]string, error) {
	keys, err := o.blobs.List(ctx, outboxPrefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, outboxPrefix)
	}
	return keys, nil
}
