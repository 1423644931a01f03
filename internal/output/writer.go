// Package output lays build artifacts out in a store:
//
//	images/<edition>.png
//	gifs/<edition>.gif
//	json/<edition>.json
//	json/_metadata.json
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/zjrosen/layerforge/internal/store"
)

// AggregateKey is the key of the collection-wide metadata file.
const AggregateKey = "json/_metadata.json"

func ImageKey(edition int) string    { return fmt.Sprintf("images/%d.png", edition) }
func GIFKey(edition int) string      { return fmt.Sprintf("gifs/%d.gif", edition) }
func MetadataKey(edition int) string { return fmt.Sprintf("json/%d.json", edition) }

// Writer persists one collection.
type Writer struct {
	store store.Store
}

// NewWriter returns a writer over s.
func NewWriter(s store.Store) *Writer {
	return &Writer{store: s}
}

// Store returns the underlying store.
func (w *Writer) Store() store.Store { return w.store }

// Reset empties the store before a run.
func (w *Writer) Reset(ctx context.Context) error {
	if err := w.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset build output: %w", err)
	}
	return nil
}

func (w *Writer) WriteImage(ctx context.Context, edition int, png []byte) error {
	return w.put(ctx, ImageKey(edition), png, "image/png")
}

func (w *Writer) WriteGIF(ctx context.Context, edition int, data []byte) error {
	return w.put(ctx, GIFKey(edition), data, "image/gif")
}

// WriteMetadata writes the record of one edition.
func (w *Writer) WriteMetadata(ctx context.Context, edition int, record any) error {
	return w.putJSON(ctx, MetadataKey(edition), record)
}

// WriteAggregate writes every record of the run, in acceptance order.
func (w *Writer) WriteAggregate(ctx context.Context, records []any) error {
	if records == nil {
		records = []any{}
	}
	return w.putJSON(ctx, AggregateKey, records)
}

// ReadAggregate decodes the aggregate file into v.
func (w *Writer) ReadAggregate(ctx context.Context, v any) error {
	rc, err := w.store.Get(ctx, AggregateKey)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", AggregateKey, err)
	}
	return nil
}

func (w *Writer) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.put(ctx, key, data, "application/json")
}

func (w *Writer) put(ctx context.Context, key string, data []byte, contentType string) error {
	if _, err := w.store.Put(ctx, key, bytes.NewReader(data), store.PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
