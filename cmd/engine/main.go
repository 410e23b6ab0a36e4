// Command engine runs a YAML-configured pipeline over a newline-delimited
// JSON event file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/ocsf"
	"github.com/tenzir/tenzir-sub011/internal/operator"

	// Operator registrations.
	_ "github.com/tenzir/tenzir-sub011/internal/clickhouse"
	_ "github.com/tenzir/tenzir-sub011/internal/eval"
)

// config is the engine's YAML configuration.
type config struct {
	Input struct {
		File      string `yaml:"file"`
		Schema    string `yaml:"schema"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"input"`
	Pipeline []struct {
		Operator string         `yaml:"operator"`
		Args     map[string]any `yaml:"args"`
	} `yaml:"pipeline"`
}

func main() {
	configPath := flag.String("config", "engine.yaml", "pipeline configuration file")
	flag.Parse()
	logger := diag.NewLogger()
	defer logger.Sync()
	if err := run(*configPath, logger); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, logger *zap.Logger) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Input.File == "" {
		return fmt.Errorf("input.file is required")
	}
	if cfg.Input.Schema == "" {
		cfg.Input.Schema = "tenzir.import"
	}
	if cfg.Input.BatchSize <= 0 {
		cfg.Input.BatchSize = 1024
	}
	operators := make([]operator.Operator, 0, len(cfg.Pipeline))
	for _, stage := range cfg.Pipeline {
		factory, ok := operator.Lookup(stage.Operator)
		if !ok {
			return fmt.Errorf("unknown operator `%s` (have: %v)", stage.Operator, operator.Names())
		}
		op, err := factory(stage.Args)
		if err != nil {
			return fmt.Errorf("operator `%s`: %w", stage.Operator, err)
		}
		operators = append(operators, op)
	}
	schemas, err := ocsf.NewRegistry()
	if err != nil {
		return err
	}
	sink := diag.NewSink(diag.Printer{Logger: logger})
	cp := operator.NewControlPlane(sink, schemas, logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := make(chan batch.Batch)
	readErr := make(chan error, 1)
	go func() {
		defer close(source)
		readErr <- readBatches(ctx, cfg.Input.File, cfg.Input.Schema, cfg.Input.BatchSize, source)
	}()
	out, wait := operator.NewPipeline(operators...).Run(ctx, cp, source)
	rows := 0
	batches := 0
	for b := range out {
		rows += b.Rows()
		batches++
	}
	if err := wait(); err != nil {
		return err
	}
	if err := <-readErr; err != nil {
		return err
	}
	logger.Info("pipeline done", zap.Int("batches", batches), zap.Int("rows", rows))
	if sink.Failed() {
		return fmt.Errorf("pipeline emitted an error diagnostic")
	}
	return nil
}
