package ocsf

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/goccy/go-json"

	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

// printJSONArray renders every row of an array as a compact JSON string.
// String inputs pass through unchanged, assuming they already hold JSON.
// Null rows stay null instead of rendering as the string "null". With
// nullifyEmptyRecords, an input that is an empty record type renders as JSON
// null for all rows.
func printJSONArray(t types.Type, arr arrow.Array, nullifyEmptyRecords bool) arrow.Array {
	if t.Kind() == types.KindString {
		return arr
	}
	if nullifyEmptyRecords {
		if rt, ok := t.(types.RecordType); ok && len(rt.Fields) == 0 {
			return builder.NullArray(types.StringType{}, arr.Len())
		}
	}
	sb := builder.New(types.StringType{}).(*array.StringBuilder)
	sb.Reserve(arr.Len())
	var buf bytes.Buffer
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			sb.AppendNull()
			continue
		}
		buf.Reset()
		renderJSON(&buf, view.ValueAt(t, arr, i))
		sb.Append(buf.String())
	}
	return builder.Finish(sb)
}

// renderJSON writes one value as JSON, preserving record field order.
func renderJSON(buf *bytes.Buffer, d types.Data) {
	if d == nil {
		buf.WriteString("null")
		return
	}
	switch v := d.(type) {
	case types.Null:
		buf.WriteString("null")
	case types.Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case types.Int64:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case types.UInt64:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case types.Double:
		buf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case types.String:
		writeJSONString(buf, string(v))
	case types.Blob:
		writeJSONString(buf, base64.StdEncoding.EncodeToString(v))
	case types.Duration:
		writeJSONString(buf, time.Duration(v).String())
	case types.Time:
		writeJSONString(buf, time.Time(v).UTC().Format(time.RFC3339Nano))
	case types.IP:
		writeJSONString(buf, v.Addr().Unmap().String())
	case types.Subnet:
		writeJSONString(buf, v.String())
	case types.Enum:
		writeJSONString(buf, v.Label)
	case types.Secret:
		writeJSONString(buf, "***")
	case view.Record:
		if !v.Valid() {
			buf.WriteString("null")
			return
		}
		buf.WriteByte('{')
		first := true
		for name, value := range v.Fields() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONString(buf, name)
			buf.WriteByte(':')
			renderJSON(buf, value)
		}
		buf.WriteByte('}')
	case view.List:
		if !v.Valid() {
			buf.WriteString("null")
			return
		}
		buf.WriteByte('[')
		first := true
		for elem := range v.Elems() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			renderJSON(buf, elem)
		}
		buf.WriteByte(']')
	default:
		writeJSONString(buf, d.String())
	}
}

// writeJSONString escapes a string through the JSON encoder.
func writeJSONString(buf *bytes.Buffer, s string) {
	encoded, err := json.Marshal(s)
	if err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(encoded)
}
