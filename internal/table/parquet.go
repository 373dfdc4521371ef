package table

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/cbtrade/mdstore/internal/columnar"
)

const parquetRoot = "parquet_go_root"

func parquetTag(f columnar.Field) (string, error) {
	var typ string
	switch f.Type {
	case columnar.TypeInt64:
		typ = "type=INT64"
	case columnar.TypeInt32:
		typ = "type=INT32"
	case columnar.TypeFloat64:
		typ = "type=DOUBLE"
	case columnar.TypeString:
		typ = "type=BYTE_ARRAY, convertedtype=UTF8"
	case columnar.TypeBool:
		typ = "type=BOOLEAN"
	default:
		return "", fmt.Errorf("unsupported column type %q", f.Type)
	}
	return fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", f.Name, typ), nil
}

// jsonSchema builds the dynamic parquet schema for a frame.
func jsonSchema(fields []columnar.Field) (string, error) {
	type tagged struct {
		Tag string `json:"Tag"`
	}
	schema := struct {
		Tag    string   `json:"Tag"`
		Fields []tagged `json:"Fields"`
	}{Tag: fmt.Sprintf("name=%s, repetitiontype=REQUIRED", parquetRoot)}
	for _, f := range fields {
		tag, err := parquetTag(f)
		if err != nil {
			return "", err
		}
		schema.Fields = append(schema.Fields, tagged{Tag: tag})
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeFrame serializes a frame to parquet bytes. Null cells become
// parquet nulls via the OPTIONAL repetition type.
func encodeFrame(f *columnar.Frame) ([]byte, error) {
	schema, err := jsonSchema(f.Fields())
	if err != nil {
		return nil, err
	}
	bf := buffer.NewBufferFile()
	pw, err := writer.NewJSONWriter(schema, bf, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := 0; i < f.NumRows(); i++ {
		row, err := json.Marshal(f.Row(i))
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if err := pw.Write(string(row)); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	if err := bf.Close(); err != nil {
		return nil, err
	}
	return bf.Bytes(), nil
}

// decodeColumns reads the requested columns from parquet bytes into a frame.
// Requested columns missing from the file schema come back null-filled, so
// files written before a schema extension still merge cleanly.
func decodeColumns(data []byte, fileSchema []columnar.Field, wanted []columnar.Field) (*columnar.Frame, error) {
	bf := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(bf, nil, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer pr.ReadStop()

	present := make(map[string]struct{}, len(fileSchema))
	for _, f := range fileSchema {
		present[f.Name] = struct{}{}
	}
	numRows := int(pr.GetNumRows())
	out := columnar.New()
	for _, field := range wanted {
		if _, ok := present[field.Name]; !ok {
			if err := out.AddColumn(field.Name, field.Type, make([]any, numRows)); err != nil {
				return nil, err
			}
			continue
		}
		raw, _, dls, err := pr.ReadColumnByPath(common.ReformPathStr(parquetRoot+"."+field.Name), int64(numRows))
		if err != nil {
			return nil, fmt.Errorf("failed to read column %q: %w", field.Name, err)
		}
		cells, err := cellsFromColumn(field, raw, dls, numRows)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(field.Name, field.Type, cells); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// cellsFromColumn aligns raw column values with definition levels. Depending
// on the reader version, raw either already carries one entry per row (nil
// for nulls) or only the non-null entries.
func cellsFromColumn(field columnar.Field, raw []any, dls []int32, numRows int) ([]any, error) {
	cells := make([]any, numRows)
	if len(raw) == numRows && len(dls) == numRows {
		for i, v := range raw {
			if dls[i] == 0 || v == nil {
				continue
			}
			cell, err := normalizeCell(field, v)
			if err != nil {
				return nil, err
			}
			cells[i] = cell
		}
		return cells, nil
	}
	next := 0
	for i := 0; i < numRows && i < len(dls); i++ {
		if dls[i] == 0 {
			continue
		}
		if next >= len(raw) {
			return nil, fmt.Errorf("column %q: value stream exhausted at row %d", field.Name, i)
		}
		cell, err := normalizeCell(field, raw[next])
		next++
		if err != nil {
			return nil, err
		}
		cells[i] = cell
	}
	return cells, nil
}

func normalizeCell(field columnar.Field, v any) (any, error) {
	switch field.Type {
	case columnar.TypeInt64:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int32:
			return int64(t), nil
		}
	case columnar.TypeInt32:
		switch t := v.(type) {
		case int32:
			return t, nil
		case int64:
			return int32(t), nil
		}
	case columnar.TypeFloat64:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		}
	case columnar.TypeString:
		if t, ok := v.(string); ok {
			return t, nil
		}
		if t, ok := v.([]byte); ok {
			return string(t), nil
		}
	case columnar.TypeBool:
		if t, ok := v.(bool); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("column %q: unexpected parquet value type %T", field.Name, v)
}

// partitionDir renders a partition value map as a hive-style directory path,
// e.g. year=2024/month=03/day=07.
func partitionDir(cols []string, values map[string]int32) string {
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		v := values[col]
		if col == "year" {
			parts = append(parts, fmt.Sprintf("%s=%04d", col, v))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%02d", col, v))
		}
	}
	return strings.Join(parts, "/")
}
