// Package ocsf implements the schema-driven OCSF normalizer: it segments
// batches into runs with stable (version, class, profiles, extensions) and
// projects each run onto the catalog schema for its class.
package ocsf

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/operator"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

func init() {
	operator.Register("ocsf::apply", func(args map[string]any) (operator.Operator, error) {
		printJSON := true
		for key, value := range args {
			switch key {
			case "print_json":
				v, ok := value.(bool)
				if !ok {
					return nil, fmt.Errorf("`print_json` must be a bool")
				}
				printJSON = v
			default:
				return nil, fmt.Errorf("unknown argument `%s`", key)
			}
		}
		return NewOperator(printJSON), nil
	})
}

// stringList is a zero-copy window into a list-of-strings row, used for the
// per-row profile and extension sets.
type stringList struct {
	array  *array.String
	begin  int
	length int
}

func (l stringList) equal(other stringList) bool {
	if l.length != other.length {
		return false
	}
	for i := 0; i < l.length; i++ {
		ln := l.array.IsNull(l.begin + i)
		rn := other.array.IsNull(other.begin + i)
		if ln != rn {
			return false
		}
		if !ln && l.array.Value(l.begin+i) != other.array.Value(other.begin+i) {
			return false
		}
	}
	return true
}

// contains matches byte-equal, preserving the catalog's exact key semantics.
func (l stringList) contains(name string) bool {
	for i := 0; i < l.length; i++ {
		if !l.array.IsNull(l.begin+i) && l.array.Value(l.begin+i) == name {
			return true
		}
	}
	return false
}

// stringListAt returns a per-row accessor over a list-of-strings array. A
// nil list yields empty sets for every row.
func stringListAt(list *array.List) func(i int) stringList {
	var values *array.String
	if list != nil {
		values = list.ListValues().(*array.String)
	}
	return func(i int) stringList {
		if list == nil || list.IsNull(i) {
			return stringList{}
		}
		start, end := list.ValueOffsets(i)
		return stringList{array: values, begin: int(start), length: int(end - start)}
	}
}

// Operator is the OCSF normalization operator.
type Operator struct {
	printJSON bool
	loc       diag.Location
}

// NewOperator builds the operator; printJSON controls whether `print_json`
// fields render to JSON strings or pass through as null-typed data.
func NewOperator(printJSON bool) *Operator {
	return &Operator{printJSON: printJSON, loc: diag.UnknownLocation}
}

func (*Operator) Name() string { return "ocsf::apply" }

func (o *Operator) Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp operator.ControlPlane) error {
	dh := cp.Diagnostics()
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return nil
			}
			for _, result := range o.Apply(b, cp.SchemaRegistry(), dh) {
				select {
				case out <- result:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if resettable, ok := dh.(interface{ ResetBatch() }); ok {
				resettable.ResetBatch()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Apply runs scan → segment → cast → emit on one batch and returns the
// non-empty result batches.
func (o *Operator) Apply(b batch.Batch, schemas operator.SchemaRegistry, dh diag.Handler) []batch.Batch {
	if b.Rows() == 0 {
		return nil
	}
	columns, ok := o.scan(b, dh)
	if !ok {
		return nil
	}
	var results []batch.Batch
	begin := 0
	version := columns.versionAt(begin)
	classUID := columns.classAt(begin)
	profiles := columns.profilesAt(begin)
	extensions := columns.extensionsAt(begin)
	emit := func(end int) {
		result := o.castRun(b.Slice(begin, end), version, classUID, profiles, extensions, schemas, dh)
		if result.Rows() > 0 {
			results = append(results, result)
		}
	}
	for end := 1; end < b.Rows(); end++ {
		nextVersion := columns.versionAt(end)
		nextClass := columns.classAt(end)
		nextProfiles := columns.profilesAt(end)
		nextExtensions := columns.extensionsAt(end)
		if stringPtrEqual(version, nextVersion) && int64PtrEqual(classUID, nextClass) &&
			profiles.equal(nextProfiles) && extensions.equal(nextExtensions) {
			continue
		}
		emit(end)
		begin = end
		version = nextVersion
		classUID = nextClass
		profiles = nextProfiles
		extensions = nextExtensions
	}
	emit(b.Rows())
	return results
}

// scanColumns holds the per-row accessors for the segmentation keys.
type scanColumns struct {
	versionAt    func(i int) *string
	classAt      func(i int) *int64
	profilesAt   func(i int) stringList
	extensionsAt func(i int) stringList
}

// scan locates `metadata.version`, `class_uid`, `metadata.profiles` and
// `metadata.extensions[].name`. Missing or mistyped required columns drop
// the whole batch with a warning.
func (o *Operator) scan(b batch.Batch, dh diag.Handler) (scanColumns, bool) {
	metadataCol, ok := b.ColumnByName("metadata")
	if !ok {
		diag.Warningf("dropping events where `metadata` does not exist").
			Primary(o.loc).Emit(dh)
		return scanColumns{}, false
	}
	metadataType, metadataArr, ok := metadataCol.AsRecord()
	if !ok {
		diag.Warningf("dropping events where `metadata` is not a record").
			Primary(o.loc).Emit(dh)
		return scanColumns{}, false
	}
	versionIdx := metadataType.FieldIndex("version")
	if versionIdx < 0 {
		diag.Warningf("dropping events where `metadata.version` does not exist").
			Primary(o.loc).Emit(dh)
		return scanColumns{}, false
	}
	versionArr, ok := metadataArr.Field(versionIdx).(*array.String)
	if !ok {
		diag.Warningf("dropping events where `metadata.version` is not a string").
			Primary(o.loc).Emit(dh)
		return scanColumns{}, false
	}
	classCol, ok := b.ColumnByName("class_uid")
	if !ok {
		diag.Warningf("dropping events where `class_uid` does not exist").
			Primary(o.loc).Emit(dh)
		return scanColumns{}, false
	}
	classArr, ok := classCol.Array.(*array.Int64)
	if !ok {
		diag.Warningf("dropping events where `class_uid` is not an integer").
			Primary(o.loc).Emit(dh)
		return scanColumns{}, false
	}
	out := scanColumns{
		versionAt: func(i int) *string {
			if versionArr.IsNull(i) || metadataArr.IsNull(i) {
				return nil
			}
			v := versionArr.Value(i)
			return &v
		},
		classAt: func(i int) *int64 {
			if classArr.IsNull(i) {
				return nil
			}
			v := classArr.Value(i)
			return &v
		},
		profilesAt:   stringListAt(nil),
		extensionsAt: stringListAt(nil),
	}
	if i := metadataType.FieldIndex("profiles"); i >= 0 {
		if list, isList := metadataArr.Field(i).(*array.List); isList {
			if _, isStrings := list.ListValues().(*array.String); isStrings {
				out.profilesAt = stringListAt(list)
			} else if _, isNull := list.ListValues().(*array.Null); !isNull {
				diag.Warningf("ignoring profiles for events where `metadata.profiles` is not a list of strings").
					Primary(o.loc).Emit(dh)
			}
		} else if _, isNull := metadataArr.Field(i).(*array.Null); !isNull {
			diag.Warningf("ignoring profiles for events where `metadata.profiles` is not a list").
				Primary(o.loc).Emit(dh)
		}
	}
	if i := metadataType.FieldIndex("extensions"); i >= 0 {
		if names := o.extensionNameList(metadataType, metadataArr, i, dh); names != nil {
			out.extensionsAt = stringListAt(names)
		}
	}
	return out, true
}

// extensionNameList projects `metadata.extensions[].name` into a
// list-of-strings array sharing the extensions list's offsets.
func (o *Operator) extensionNameList(metadataType types.RecordType, metadataArr *array.Struct, idx int, dh diag.Handler) *array.List {
	list, ok := metadataArr.Field(idx).(*array.List)
	if !ok {
		if _, isNull := metadataArr.Field(idx).(*array.Null); !isNull {
			diag.Warningf("ignoring extensions for events where `metadata.extensions` is not a list").
				Primary(o.loc).Emit(dh)
		}
		return nil
	}
	elems, ok := list.ListValues().(*array.Struct)
	if !ok {
		if _, isNull := list.ListValues().(*array.Null); !isNull {
			diag.Warningf("ignoring extensions for events where `metadata.extensions` is not a list of records").
				Primary(o.loc).Emit(dh)
		}
		return nil
	}
	listType, ok := metadataType.Fields[idx].Type.(types.ListType)
	if !ok {
		return nil
	}
	elemType, ok := listType.Elem.(types.RecordType)
	if !ok {
		return nil
	}
	nameIdx := elemType.FieldIndex("name")
	if nameIdx < 0 {
		diag.Warningf("ignoring extensions for events where `metadata.extensions[].name` does not exist").
			Primary(o.loc).Emit(dh)
		return nil
	}
	names, ok := elems.Field(nameIdx).(*array.String)
	if !ok {
		diag.Warningf("ignoring extensions for events where `metadata.extensions[].name` is not a string").
			Primary(o.loc).Emit(dh)
		return nil
	}
	return builder.MakeListArray(list, names)
}

// castRun resolves the run's schema and casts the slice. Unresolvable runs
// yield an empty batch with one warning.
func (o *Operator) castRun(run batch.Batch, version *string, classUID *int64, profiles, extensions stringList, schemas operator.SchemaRegistry, dh diag.Handler) batch.Batch {
	if version == nil {
		diag.Warningf("dropping events where `metadata.version` is null").
			Primary(o.loc).Emit(dh)
		return batch.Batch{}
	}
	parsed, ok := ParseVersion(*version)
	if !ok {
		diag.Warningf("dropping events with unknown OCSF version").
			Note("found `%s`", *version).Primary(o.loc).Emit(dh)
		return batch.Batch{}
	}
	if classUID == nil {
		diag.Warningf("dropping events where `class_uid` is null").
			Primary(o.loc).Emit(dh)
		return batch.Batch{}
	}
	className, ok := ClassName(parsed, *classUID)
	if !ok {
		diag.Warningf("dropping events where `class_uid` is unknown").
			Note("could not find class for value `%d`", *classUID).Primary(o.loc).Emit(dh)
		return batch.Batch{}
	}
	schema, ok := schemas.Get(SchemaName(parsed, className))
	if !ok {
		diag.Warningf("could not find schema for the given event").
			Note("tried to find version `%s` for class `%s`", *version, className).
			Primary(o.loc).Emit(dh)
		return batch.Batch{}
	}
	if extension, gated := types.GetAttribute(schema, "extension"); gated && !extensions.contains(extension) {
		diag.Warningf("dropping event for class `%s` because extension `%s` is not enabled",
			className, extension).Primary(o.loc).Emit(dh)
		return batch.Batch{}
	}
	c := &caster{
		loc:        o.loc,
		dh:         dh,
		profiles:   profiles,
		extensions: extensions,
		printJSON:  o.printJSON,
	}
	return c.cast(run, schema, "ocsf."+SnakeCase(className))
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
