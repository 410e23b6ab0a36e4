package ocsf

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tenzir/tenzir-sub011/internal/operator"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

//go:embed schemas.yaml
var schemasYAML []byte

// knownVersions lists the catalog versions the engine ships schemas for.
var knownVersions = []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0", "1.4.0", "1.5.0"}

// classNames maps class_uid to the catalog class name.
var classNames = map[int64]string{
	1007: "Process Activity",
	3002: "Authentication",
}

// ParseVersion validates a version string against the catalog.
func ParseVersion(s string) (string, bool) {
	for _, v := range knownVersions {
		if v == s {
			return v, true
		}
	}
	return "", false
}

// ClassName resolves a class_uid for a catalog version.
func ClassName(version string, uid int64) (string, bool) {
	name, ok := classNames[uid]
	return name, ok
}

// MangleVersion turns a version string into a schema-name component:
// `.` and `-` become `_`, other non-alphanumerics are dropped, and the
// result is prefixed with `v`.
func MangleVersion(version string) string {
	var sb strings.Builder
	sb.Grow(1 + len(version))
	sb.WriteByte('v')
	for i := 0; i < len(version); i++ {
		c := version[i]
		switch {
		case '0' <= c && c <= '9', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', c == '_':
			sb.WriteByte(c)
		case c == '.' || c == '-':
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// SnakeCase lowercases a class name and replaces spaces with underscores.
func SnakeCase(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == ' ' {
			sb.WriteByte('_')
			continue
		}
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// SchemaName builds the registry key for a (version, class) pair, e.g.
// `_ocsf.v1_5_0.authentication`.
func SchemaName(version, className string) string {
	return fmt.Sprintf("_ocsf.%s.%s", MangleVersion(version), SnakeCase(className))
}

// schemaFile is the embedded catalog document: schema name to legacy type.
type schemaFile struct {
	Schemas map[string]types.LegacyType `yaml:"schemas"`
}

// NewRegistry loads the embedded OCSF schema catalog. The registry is
// read-only after construction.
func NewRegistry() (operator.MapRegistry, error) {
	var file schemaFile
	if err := yaml.Unmarshal(schemasYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse embedded OCSF catalog: %w", err)
	}
	out := make(operator.MapRegistry, len(file.Schemas))
	for name, legacy := range file.Schemas {
		t, err := types.FromLegacy(legacy)
		if err != nil {
			return nil, fmt.Errorf("schema `%s`: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}
