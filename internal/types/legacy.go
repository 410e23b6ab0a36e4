package types

import "fmt"

// LegacyType is the older on-wire representation of a logical type, kept for
// interoperability with catalogs written before the current vocabulary. The
// legacy names predate the engine: signed integers were "integer", unsigned
// "count", floating point "real" and addresses "address".
type LegacyType struct {
	Name   string            `yaml:"type"`
	Attrs  []Attribute       `yaml:"attributes,omitempty"`
	Elem   *LegacyType       `yaml:"elem,omitempty"`
	Key    *LegacyType       `yaml:"key,omitempty"`
	Value  *LegacyType       `yaml:"value,omitempty"`
	Fields []LegacyField     `yaml:"fields,omitempty"`
	Labels map[string]uint64 `yaml:"labels,omitempty"`
}

// LegacyField is a named member of a legacy record type.
type LegacyField struct {
	Name string     `yaml:"name"`
	Type LegacyType `yaml:"of"`
}

// ToLegacy converts a type into its legacy wire form.
func ToLegacy(t Type) (LegacyType, error) {
	out := LegacyType{Attrs: t.Attributes()}
	switch t := t.(type) {
	case NullType:
		out.Name = "none"
	case BoolType:
		out.Name = "bool"
	case Int64Type:
		out.Name = "integer"
	case UInt64Type:
		out.Name = "count"
	case DoubleType:
		out.Name = "real"
	case DurationType:
		out.Name = "duration"
	case TimeType:
		out.Name = "time"
	case StringType:
		out.Name = "string"
	case BlobType:
		out.Name = "blob"
	case IPType:
		out.Name = "address"
	case SubnetType:
		out.Name = "subnet"
	case EnumerationType:
		out.Name = "enumeration"
		out.Labels = make(map[string]uint64, len(t.Fields))
		for _, f := range t.Fields {
			out.Labels[f.Name] = f.Value
		}
	case ListType:
		out.Name = "list"
		elem, err := ToLegacy(t.Elem)
		if err != nil {
			return LegacyType{}, err
		}
		out.Elem = &elem
	case RecordType:
		out.Name = "record"
		for _, f := range t.Fields {
			ft, err := ToLegacy(f.Type)
			if err != nil {
				return LegacyType{}, err
			}
			out.Fields = append(out.Fields, LegacyField{Name: f.Name, Type: ft})
		}
	case MapType:
		out.Name = "map"
		key, err := ToLegacy(t.Key)
		if err != nil {
			return LegacyType{}, err
		}
		value, err := ToLegacy(t.Value)
		if err != nil {
			return LegacyType{}, err
		}
		out.Key = &key
		out.Value = &value
	default:
		return LegacyType{}, fmt.Errorf("type %s has no legacy representation", t)
	}
	return out, nil
}

// FromLegacy converts the legacy wire form back into a type. FromLegacy and
// ToLegacy are inverse on the supported subset.
func FromLegacy(l LegacyType) (Type, error) {
	var t Type
	switch l.Name {
	case "none":
		t = NullType{}
	case "bool":
		t = BoolType{}
	case "integer":
		t = Int64Type{}
	case "count":
		t = UInt64Type{}
	case "real":
		t = DoubleType{}
	case "duration":
		t = DurationType{}
	case "time":
		t = TimeType{}
	case "string":
		t = StringType{}
	case "blob":
		t = BlobType{}
	case "address":
		t = IPType{}
	case "subnet":
		t = SubnetType{}
	case "enumeration":
		fields := make([]EnumField, 0, len(l.Labels))
		for name, value := range l.Labels {
			fields = append(fields, EnumField{Name: name, Value: value})
		}
		// Map iteration order is not stable; order by value, which density
		// guarantees to be a total order.
		for i := range fields {
			for j := i + 1; j < len(fields); j++ {
				if fields[j].Value < fields[i].Value {
					fields[i], fields[j] = fields[j], fields[i]
				}
			}
		}
		enum, err := NewEnumeration(fields)
		if err != nil {
			return nil, err
		}
		t = enum
	case "list":
		if l.Elem == nil {
			return nil, fmt.Errorf("legacy list type without element")
		}
		elem, err := FromLegacy(*l.Elem)
		if err != nil {
			return nil, err
		}
		t = NewList(elem)
	case "record":
		fields := make([]Field, 0, len(l.Fields))
		for _, f := range l.Fields {
			ft, err := FromLegacy(f.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: f.Name, Type: ft})
		}
		rec, err := NewRecord(fields)
		if err != nil {
			return nil, err
		}
		t = rec
	case "map":
		if l.Key == nil || l.Value == nil {
			return nil, fmt.Errorf("legacy map type without key or value")
		}
		key, err := FromLegacy(*l.Key)
		if err != nil {
			return nil, err
		}
		value, err := FromLegacy(*l.Value)
		if err != nil {
			return nil, err
		}
		t = MapType{Key: key, Value: value}
	default:
		return nil, fmt.Errorf("unknown legacy type %q", l.Name)
	}
	return WithAttributes(t, l.Attrs...), nil
}
