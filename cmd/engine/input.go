package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// readBatches streams newline-delimited JSON objects from a file into
// batches. The schema is inferred from the first row of each batch; rows
// that do not match it are skipped.
func readBatches(ctx context.Context, path, schemaName string, batchSize int, out chan<- batch.Batch) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	rows := make([]types.Data, 0, batchSize)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		b, err := batchFromRows(schemaName, rows)
		if err != nil {
			return err
		}
		rows = rows[:0]
		select {
		case out <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		row, err := decodeRow(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
		if len(rows) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

func batchFromRows(schemaName string, rows []types.Data) (batch.Batch, error) {
	schema, err := types.Infer(rows[0])
	if err != nil {
		return batch.Batch{}, err
	}
	rt, ok := schema.(types.RecordType)
	if !ok {
		return batch.Batch{}, fmt.Errorf("events must be records, got %s", schema.Kind())
	}
	matching := rows[:0]
	for _, row := range rows {
		if types.Check(rt, row) {
			matching = append(matching, row)
		}
	}
	arr, err := builder.FromData(rt, matching)
	if err != nil {
		return batch.Batch{}, err
	}
	return batch.FromSeries(schemaName, series.Series{Type: rt, Array: arr})
}

// decodeRow parses one JSON object, preserving field order.
func decodeRow(text []byte) (types.Data, error) {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return decodeObject(dec)
}

func decodeObject(dec *json.Decoder) (types.Data, error) {
	var out types.Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, types.RecordField{Name: key, Value: value})
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeArray(dec *json.Decoder) (types.Data, error) {
	var out types.List
	for dec.More() {
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out.Elems = append(out.Elems, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeValue(dec *json.Decoder) (types.Data, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tok := tok.(type) {
	case json.Delim:
		switch tok {
		case json.Delim('{'):
			return decodeObject(dec)
		case json.Delim('['):
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("unexpected token %v", tok)
	case string:
		return types.String(tok), nil
	case bool:
		return types.Bool(tok), nil
	case json.Number:
		if i, err := tok.Int64(); err == nil {
			return types.Int64(i), nil
		}
		f, err := tok.Float64()
		if err != nil {
			return nil, err
		}
		return types.Double(f), nil
	case nil:
		return types.Null{}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}
