// Package operator defines the execution contract between the engine and its
// processing stages. Operators run one goroutine each, pull batches from an
// input channel, and push results downstream; not sending on a tick is the
// cooperative idle primitive. Batch order is preserved end to end.
package operator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// SchemaRegistry resolves fully-qualified schema names such as
// `_ocsf.v1_5_0.authentication`. Registries are read-only after
// initialization and therefore safe to share.
type SchemaRegistry interface {
	Get(name string) (types.Type, bool)
}

// ControlPlane hands operators their environment.
type ControlPlane interface {
	Diagnostics() diag.Handler
	SchemaRegistry() SchemaRegistry
	Logger() *zap.Logger
}

// Operator processes a stream of batches. Run returns when the input channel
// closes (upstream done) or the context is cancelled; it must close nothing
// and may return early after emitting an error diagnostic. Each operator
// instance is driven by exactly one goroutine.
type Operator interface {
	Name() string
	Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp ControlPlane) error
}

// MapRegistry is a SchemaRegistry over a plain map.
type MapRegistry map[string]types.Type

func (r MapRegistry) Get(name string) (types.Type, bool) {
	t, ok := r[name]
	return t, ok
}

// controlPlane is the default ControlPlane implementation.
type controlPlane struct {
	diagnostics diag.Handler
	schemas     SchemaRegistry
	logger      *zap.Logger
}

// NewControlPlane assembles a control plane from its parts. A nil logger
// falls back to a no-op logger; a nil registry resolves nothing.
func NewControlPlane(h diag.Handler, schemas SchemaRegistry, logger *zap.Logger) ControlPlane {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schemas == nil {
		schemas = MapRegistry(nil)
	}
	return &controlPlane{diagnostics: h, schemas: schemas, logger: logger}
}

func (c *controlPlane) Diagnostics() diag.Handler      { return c.diagnostics }
func (c *controlPlane) SchemaRegistry() SchemaRegistry { return c.schemas }
func (c *controlPlane) Logger() *zap.Logger            { return c.logger }

// Factory builds an operator from its decoded configuration. Factories
// validate eagerly: a configuration error fails the pipeline before any
// batch flows.
type Factory func(args map[string]any) (Operator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a factory under the operator name. Duplicate registration is
// a programming error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("operator %q registered twice", name))
	}
	registry[name] = f
}

// Lookup returns the factory for an operator name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names lists all registered operator names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
