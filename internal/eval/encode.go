package eval

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// byteInput reads a row of a string or blob series, the two byte-carrying
// ground types the codec functions accept.
func byteInput(s series.Series, i int) ([]byte, bool) {
	switch arr := s.Array.(type) {
	case *array.String:
		return []byte(arr.Value(i)), true
	case *array.Binary:
		return arr.Value(i), true
	}
	return nil, false
}

func evalCodec(e *Evaluator, call *ast.Call, name string,
	apply func(in []byte) (types.Data, error), result types.Type) series.Multi {
	if len(call.Args) != 1 {
		diag.Errorf("`%s` expects 1 argument, got %d", name, len(call.Args)).
			Primary(call.Location).Emit(e.dh)
		return e.null()
	}
	input := e.Eval(call.Args[0])
	out, _ := series.Map1(input, func(s series.Series) (series.Multi, error) {
		switch s.Type.Kind() {
		case types.KindNull:
			return series.One(s), nil
		case types.KindString, types.KindBlob:
		default:
			diag.Warningf("expected `string|blob`, but got `%s`", s.Type.Kind()).
				Primary(call.Args[0].Loc()).Emit(e.dh)
			return nullWindow(s.Len()), nil
		}
		b := builder.New(result)
		b.Reserve(s.Len())
		failed := false
		for i := 0; i < s.Len(); i++ {
			if s.IsNull(i) {
				b.AppendNull()
				continue
			}
			in, _ := byteInput(s, i)
			v, err := apply(in)
			if err != nil {
				failed = true
				b.AppendNull()
				continue
			}
			if err := builder.Append(b, result, v); err != nil {
				b.AppendNull()
			}
		}
		if failed {
			diag.Warningf("`%s` failed to decode some values", name).
				Primary(call.Args[0].Loc()).Emit(e.dh)
		}
		return series.One(series.Series{Type: result, Array: builder.Finish(b)}), nil
	})
	return out
}

func evalEncodeBase64(e *Evaluator, call *ast.Call) series.Multi {
	return evalCodec(e, call, "encode_base64", func(in []byte) (types.Data, error) {
		return types.String(base64.StdEncoding.EncodeToString(in)), nil
	}, types.StringType{})
}

func evalDecodeBase64(e *Evaluator, call *ast.Call) series.Multi {
	return evalCodec(e, call, "decode_base64", func(in []byte) (types.Data, error) {
		out, err := base64.StdEncoding.DecodeString(string(in))
		if err != nil {
			return nil, err
		}
		return types.Blob(out), nil
	}, types.BlobType{})
}

func evalEncodeHex(e *Evaluator, call *ast.Call) series.Multi {
	return evalCodec(e, call, "encode_hex", func(in []byte) (types.Data, error) {
		return types.String(hex.EncodeToString(in)), nil
	}, types.StringType{})
}

func evalDecodeHex(e *Evaluator, call *ast.Call) series.Multi {
	return evalCodec(e, call, "decode_hex", func(in []byte) (types.Data, error) {
		out, err := hex.DecodeString(string(in))
		if err != nil {
			return nil, err
		}
		return types.Blob(out), nil
	}, types.BlobType{})
}
