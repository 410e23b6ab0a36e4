package operator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tenzir/tenzir-sub011/internal/batch"
)

// queueSize bounds the per-operator queue between stages.
const queueSize = 16

// Pipeline is a sequence of operators connected by per-operator queues.
type Pipeline struct {
	operators []Operator
}

// NewPipeline chains the given operators.
func NewPipeline(operators ...Operator) *Pipeline {
	return &Pipeline{operators: operators}
}

// Run wires the operators together and starts one goroutine per operator.
// The returned channel carries the last operator's output and closes when
// the pipeline drains. Errors from individual operators are collected and
// returned by the wait function after the output channel closes.
func (p *Pipeline) Run(ctx context.Context, cp ControlPlane, source <-chan batch.Batch) (<-chan batch.Batch, func() error) {
	in := source
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, op := range p.operators {
		out := make(chan batch.Batch, queueSize)
		wg.Add(1)
		go func(op Operator, in <-chan batch.Batch, out chan<- batch.Batch) {
			defer wg.Done()
			defer close(out)
			cp.Logger().Debug("operator starting", zap.String("operator", op.Name()))
			if err := op.Run(ctx, in, out, cp); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cp.Logger().Error("operator failed",
					zap.String("operator", op.Name()), zap.Error(err))
				// Drain so upstream operators can finish.
				for range in {
				}
			}
			cp.Logger().Debug("operator done", zap.String("operator", op.Name()))
		}(op, in, out)
		in = out
	}
	wait := func() error {
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		return firstErr
	}
	return in, wait
}
