package clickhouse

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/tenzir/tenzir-sub011/internal/types"
)

// scalarSpec describes one ground type's ClickHouse mapping.
type scalarSpec struct {
	name    string
	kind    types.Kind
	accepts func(types.Kind) bool
	extract func(arr arrow.Array, i int) any
}

// The on-wire target names. Durations land in Int64 as nanosecond counts;
// times in DateTime64 at nanosecond precision.
var scalarSpecs = []scalarSpec{
	{name: "Int64", kind: types.KindInt64, accepts: acceptsDuration, extract: extractInt64},
	{name: "UInt64", kind: types.KindUInt64, extract: extractUInt64},
	{name: "Float64", kind: types.KindDouble, extract: extractFloat64},
	{name: "String", kind: types.KindString, accepts: acceptsBlob, extract: extractString},
	{name: "DateTime64(9)", kind: types.KindTime, extract: extractTime},
	{name: "IPv6", kind: types.KindIP, extract: extractIP},
}

func acceptsDuration(k types.Kind) bool { return k == types.KindDuration }
func acceptsBlob(k types.Kind) bool     { return k == types.KindBlob }

const (
	subnetTypename         = "Tuple(ip IPv6,length UInt8)"
	subnetNullableTypename = "Tuple(ip Nullable(IPv6),length Nullable(UInt8))"
)

func nullableName(name string) string {
	return "Nullable(" + name + ")"
}

// TypenameFor maps a logical type to its ClickHouse type name. Types the
// sink cannot represent yield an error; enumerations are expected to be
// resolved to strings beforehand.
func TypenameFor(t types.Type, nullable bool) (string, error) {
	switch t := t.(type) {
	case types.Int64Type, types.DurationType:
		return scalarName("Int64", nullable), nil
	case types.UInt64Type:
		return scalarName("UInt64", nullable), nil
	case types.DoubleType:
		return scalarName("Float64", nullable), nil
	case types.StringType, types.BlobType:
		return scalarName("String", nullable), nil
	case types.TimeType:
		return scalarName("DateTime64(9)", nullable), nil
	case types.IPType:
		return scalarName("IPv6", nullable), nil
	case types.SubnetType:
		if nullable {
			return subnetNullableTypename, nil
		}
		return subnetTypename, nil
	case types.ListType:
		elem, err := TypenameFor(t.Elem, nullable)
		if err != nil {
			return "", err
		}
		return "Array(" + elem + ")", nil
	case types.RecordType:
		tuple, err := PlainTupleElements(t, "")
		if err != nil {
			return "", err
		}
		return "Tuple" + tuple, nil
	default:
		return "", fmt.Errorf("type `%s` is not supported by ClickHouse", t.Kind())
	}
}

func scalarName(name string, nullable bool) string {
	if nullable {
		return nullableName(name)
	}
	return name
}

// PlainTupleElements renders a record's fields as the parenthesized element
// list of a Tuple or CREATE TABLE statement. Every leaf is Nullable except
// the column serving as the table's primary.
func PlainTupleElements(record types.RecordType, primary string) (string, error) {
	var sb strings.Builder
	sb.WriteString("(")
	for i, f := range record.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		nested, err := TypenameFor(f.Type, f.Name != primary)
		if err != nil {
			return "", fmt.Errorf("column `%s`: %w", f.Name, err)
		}
		fmt.Fprintf(&sb, "%s %s", f.Name, nested)
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// RemoveNonSignificantWhitespace canonicalizes a ClickHouse type name so
// that names from DESCRIBE output and generated names compare equal.
func RemoveNonSignificantWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	canSkip := false
	const syntax = "(),"
	for i := 0; i < len(s); i++ {
		c := s[i]
		isSpace := c == ' ' || c == '\t' || c == '\n' || c == '\r'
		if canSkip && isSpace {
			continue
		}
		sb.WriteByte(c)
		isSyntax := strings.IndexByte(syntax, c) >= 0
		canSkip = isSpace || isSyntax
		if isSyntax && i > 0 {
			// Drop the space before a syntax token, e.g. `text )`.
			out := sb.String()
			if len(out) >= 2 && out[len(out)-2] == ' ' {
				trimmed := out[:len(out)-2] + string(c)
				sb.Reset()
				sb.WriteString(trimmed)
			}
		}
	}
	return sb.String()
}

// TransformerFor builds the transformer tree for a ClickHouse type name, as
// reported by the server or generated by TypenameFor. The name must be
// whitespace-normalized.
func TransformerFor(typename string) (Transformer, error) {
	// Subnet tuples are a fixed shape and take precedence over generic
	// tuple parsing.
	if typename == subnetTypename {
		return &scalarTransformer{
			typename: subnetTypename,
			kind:     types.KindSubnet,
			extract:  extractSubnet,
		}, nil
	}
	if typename == subnetNullableTypename {
		return &scalarTransformer{
			typename: subnetNullableTypename,
			nullable: true,
			kind:     types.KindSubnet,
			extract:  extractSubnet,
		}, nil
	}
	for _, spec := range scalarSpecs {
		if typename == spec.name {
			return &scalarTransformer{
				typename: spec.name,
				kind:     spec.kind,
				accepts:  spec.accepts,
				extract:  spec.extract,
			}, nil
		}
		if typename == nullableName(spec.name) {
			return &scalarTransformer{
				typename: nullableName(spec.name),
				nullable: true,
				kind:     spec.kind,
				accepts:  spec.accepts,
				extract:  spec.extract,
			}, nil
		}
	}
	if inner, ok := strings.CutPrefix(typename, "Tuple("); ok && strings.HasSuffix(inner, ")") {
		return recordTransformerFor(typename, strings.TrimSuffix(inner, ")"))
	}
	if inner, ok := strings.CutPrefix(typename, "Array("); ok && strings.HasSuffix(inner, ")") {
		elem, err := TransformerFor(strings.TrimSuffix(inner, ")"))
		if err != nil {
			return nil, err
		}
		return newArrayTransformer(typename, elem), nil
	}
	return nil, fmt.Errorf("unsupported ClickHouse type `%s`", typename)
}

// recordTransformerFor parses the element list of a Tuple type name,
// honoring nested parentheses.
func recordTransformerFor(typename, inner string) (Transformer, error) {
	var elements []namedTransformer
	open := 0
	last := 0
	addField := func(part string) error {
		part = strings.TrimSpace(part)
		split := strings.IndexByte(part, ' ')
		if split < 0 {
			return fmt.Errorf("malformed tuple element `%s`", part)
		}
		name := part[:split]
		elem, err := TransformerFor(strings.TrimSpace(part[split+1:]))
		if err != nil {
			return err
		}
		elements = append(elements, namedTransformer{name: name, trafo: elem})
		return nil
	}
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			open++
		case ')':
			open--
		case ',':
			if open == 0 {
				if err := addField(inner[last:i]); err != nil {
					return nil, err
				}
				last = i + 1
			}
		}
	}
	if err := addField(inner[last:]); err != nil {
		return nil, err
	}
	return newRecordTransformer(typename, elements), nil
}

// TransformerForType builds the tree directly from a logical type, used
// right after the sink itself created the table.
func TransformerForType(t types.Type, nullable bool) (Transformer, error) {
	name, err := TypenameFor(t, nullable)
	if err != nil {
		return nil, err
	}
	return TransformerFor(RemoveNonSignificantWhitespace(name))
}
