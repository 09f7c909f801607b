// Package bigquery registers the "bigquery" warehouse. Each replace is a
// single load job with WRITE_TRUNCATE, which swaps both rows and schema
// atomically.
package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/option"

	"tmdbetl/internal/storage"
	"tmdbetl/internal/table"
)

func init() {
	storage.Register("bigquery", Open)
}

// loadFunc runs one truncating load of NDJSON data into ref. Tests replace it.
type loadFunc func(ctx context.Context, ref storage.TableRef, schema bq.Schema, data io.Reader) error

// Warehouse implements storage.Warehouse with BigQuery load jobs.
type Warehouse struct {
	client *bq.Client
	load   loadFunc
}

// Open creates a client for cfg.ProjectID. cfg.CredentialsFile, when set, is
// a service account key; otherwise application default credentials apply.
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("bigquery: project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}
	w := &Warehouse{client: client}
	w.load = w.runLoad
	return w, nil
}

// Close closes the client.
func (w *Warehouse) Close() error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}

// ReplaceTable implements storage.Warehouse.
func (w *Warehouse) ReplaceTable(ctx context.Context, ref storage.TableRef, t *table.Table) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s := table.InferSchema(t)
	schema, err := Schema(ref, s)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodeNDJSON(&buf, t, s); err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	if err := w.load(ctx, ref, schema, &buf); err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}
	return nil
}

func (w *Warehouse) runLoad(ctx context.Context, ref storage.TableRef, schema bq.Schema, data io.Reader) error {
	src := bq.NewReaderSource(data)
	src.SourceFormat = bq.JSON
	src.Schema = schema

	loader := w.client.Dataset(ref.Dataset).Table(ref.Table).LoaderFrom(src)
	loader.WriteDisposition = bq.WriteTruncate
	loader.CreateDisposition = bq.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job %s: %w", job.ID(), err)
	}
	return nil
}

// FieldType maps an inferred kind to a BigQuery column type. Nested values
// are stored as JSON text in STRING columns.
func FieldType(k table.Kind) bq.FieldType {
	switch k {
	case table.KindBool:
		return bq.BooleanFieldType
	case table.KindInt:
		return bq.IntegerFieldType
	case table.KindFloat:
		return bq.FloatFieldType
	case table.KindDate:
		return bq.DateFieldType
	case table.KindTimestamp:
		return bq.TimestampFieldType
	default:
		return bq.StringFieldType
	}
}

// Schema converts an inferred schema to a BigQuery schema of nullable fields.
func Schema(ref storage.TableRef, s table.Schema) (bq.Schema, error) {
	spec, err := storage.SpecFor(ref, s, func(k table.Kind) string { return string(FieldType(k)) })
	if err != nil {
		return nil, err
	}
	out := make(bq.Schema, len(spec.Columns))
	for i, c := range spec.Columns {
		out[i] = &bq.FieldSchema{Name: c.Name, Type: bq.FieldType(c.Type)}
	}
	return out, nil
}

// EncodeNDJSON writes one JSON object per row with members in column order.
// Null cells are omitted.
func EncodeNDJSON(w io.Writer, t *table.Table, s table.Schema) error {
	rows, err := table.CoercedRows(t, s)
	if err != nil {
		return err
	}
	var line bytes.Buffer
	for _, r := range rows {
		line.Reset()
		line.WriteByte('{')
		first := true
		for j, v := range r {
			if v == nil {
				continue
			}
			if !first {
				line.WriteByte(',')
			}
			first = false
			name, _ := json.Marshal(s[j].Name)
			line.Write(name)
			line.WriteByte(':')
			val, err := json.Marshal(cellValue(v))
			if err != nil {
				return fmt.Errorf("column %q: %w", s[j].Name, err)
			}
			line.Write(val)
		}
		line.WriteString("}\n")
		if _, err := w.Write(line.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case civil.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return v
}

var _ storage.Warehouse = (*Warehouse)(nil)
