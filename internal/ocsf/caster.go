package ocsf

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// caster projects one run of events onto its OCSF schema. It mirrors the
// transformer-tree pattern: the target type drives a recursive descent that
// reconciles, casts, or nulls each input column.
type caster struct {
	loc        diag.Location
	dh         diag.Handler
	profiles   stringList
	extensions stringList
	printJSON  bool
}

// cast projects a whole batch and renames its schema.
func (c *caster) cast(b batch.Batch, target types.Type, name string) batch.Batch {
	result := c.castSeries(b.ToSeries(), target, "")
	rt := result.Type.(types.RecordType)
	return batch.New(name, rt, result.Array.(*array.Struct))
}

// isProfileEnabled checks the field's `profile` gate against the run's
// profile set. Lookup is byte-equal; no case or whitespace folding.
func (c *caster) isProfileEnabled(t types.Type) bool {
	profile, ok := types.GetAttribute(t, "profile")
	return !ok || c.profiles.contains(profile)
}

func (c *caster) isExtensionEnabled(t types.Type) bool {
	extension, ok := types.GetAttribute(t, "extension")
	return !ok || c.extensions.contains(extension)
}

func (c *caster) isEnabled(t types.Type) bool {
	return c.isProfileEnabled(t) && c.isExtensionEnabled(t)
}

// castType computes the output type for a target type: gated fields drop,
// print_json fields become string (or null when JSON printing is off).
func (c *caster) castType(target types.Type) types.Type {
	if types.HasAttribute(target, "print_json") {
		if c.printJSON {
			return types.StringType{}
		}
		// The actual value type is unknowable here; null stands in.
		return types.NullType{}
	}
	switch t := target.(type) {
	case types.RecordType:
		var fields []types.Field
		for _, f := range t.Fields {
			if c.isEnabled(f.Type) {
				fields = append(fields, types.Field{Name: f.Name, Type: c.castType(f.Type)})
			}
		}
		return types.RecordType{Fields: fields}
	case types.ListType:
		return types.NewList(c.castType(t.Elem))
	case types.EnumerationType, types.MapType:
		// The OCSF catalog declares neither.
		panic("enumeration and map cannot appear in an OCSF schema")
	default:
		return target
	}
}

func (c *caster) castSeries(input series.Series, target types.Type, path string) series.Series {
	if types.HasAttribute(target, "print_json") {
		return c.castPrintJSON(input, target, path)
	}
	switch t := target.(type) {
	case types.RecordType:
		if rt, strct, ok := input.AsRecord(); ok {
			return c.castRecord(rt, strct, t, path)
		}
	case types.ListType:
		if lt, list, ok := input.AsList(); ok {
			return c.castList(lt, list, t, path)
		}
	default:
		if input.Type.Kind() == target.Kind() {
			return input
		}
	}
	// Type mismatch: a null input silently nulls the column, anything else
	// warns first.
	if input.Type.Kind() != types.KindNull {
		diag.Warningf("expected type `%s` for `%s`, but got `%s`",
			target.Kind(), path, input.Type.Kind()).Primary(c.loc).Emit(c.dh)
	}
	out := c.castType(target)
	return series.Null(out, input.Len())
}

// castPrintJSON handles fields whose target carries `print_json`.
func (c *caster) castPrintJSON(input series.Series, target types.Type, path string) series.Series {
	if target.Kind() != types.KindString {
		panic("print_json requires a string-typed target")
	}
	kind := input.Type.Kind()
	// Strings stay allowed so that applying the caster twice is idempotent.
	allowed := kind == types.KindNull || kind == types.KindRecord ||
		(c.printJSON && kind == types.KindString)
	if types.HasAttribute(target, "must_be_record") && !allowed {
		diag.Warningf("expected type `record` for `%s`, but got `%s`", path, kind).
			Primary(c.loc).Emit(c.dh)
		out := c.castType(target)
		return series.Null(out, input.Len())
	}
	if c.printJSON {
		nullify := types.HasAttribute(target, "nullify_empty_records")
		return series.Series{
			Type:  types.StringType{},
			Array: printJSONArray(input.Type, input.Array, nullify),
		}
	}
	// JSON printing is off: the field becomes null-typed, matching castType.
	return series.Null(types.NullType{}, input.Len())
}

func (c *caster) castList(input types.ListType, arr *array.List, target types.ListType, path string) series.Series {
	values := c.castSeries(
		series.Series{Type: input.Elem, Array: arr.ListValues()},
		target.Elem, path+"[]")
	return series.Series{
		Type:  types.NewList(values.Type),
		Array: builder.MakeListArray(arr, values.Array),
	}
}

func (c *caster) castRecord(input types.RecordType, arr *array.Struct, target types.RecordType, path string) series.Series {
	var fields []types.Field
	var children []arrow.Array
	for _, f := range target.Fields {
		if !c.isEnabled(f.Type) {
			continue
		}
		fieldPath := joinPath(path, f.Name)
		if i := input.FieldIndex(f.Name); i >= 0 {
			casted := c.castSeries(
				series.Series{Type: input.Fields[i].Type, Array: arr.Field(i)},
				f.Type, fieldPath)
			fields = append(fields, types.Field{Name: f.Name, Type: casted.Type})
			children = append(children, casted.Array)
			continue
		}
		// Target fields absent from the input become null columns without a
		// diagnostic.
		out := c.castType(f.Type)
		fields = append(fields, types.Field{Name: f.Name, Type: out})
		children = append(children, builder.NullArray(out, arr.Len()))
	}
	// Warn about input fields that do not survive the projection.
	for _, f := range input.Fields {
		fieldPath := joinPath(path, f.Name)
		if i := target.FieldIndex(f.Name); i >= 0 {
			fieldType := target.Fields[i].Type
			if profile, ok := types.GetAttribute(fieldType, "profile"); ok && !c.profiles.contains(profile) {
				diag.Warningf("dropping `%s` because profile `%s` is not enabled",
					fieldPath, profile).Primary(c.loc).Emit(c.dh)
			}
			if extension, ok := types.GetAttribute(fieldType, "extension"); ok && !c.extensions.contains(extension) {
				diag.Warningf("dropping `%s` because extension `%s` is not enabled",
					fieldPath, extension).Primary(c.loc).Emit(c.dh)
			}
		} else {
			// The path lives in the note so that a flood of invalid fields
			// coalesces into one diagnostic.
			diag.Warningf("dropping field which does not exist in schema").
				Note("found `%s`", fieldPath).Primary(c.loc).Emit(c.dh)
		}
	}
	rt := types.RecordType{Fields: fields}
	return series.Series{
		Type:  rt,
		Array: builder.MakeStructArray(rt, arr.Len(), children, arr),
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
