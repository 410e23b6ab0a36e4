package clickhouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/operator"
)

// Mode selects how the sink treats table existence.
type Mode int

const (
	ModeCreateAppend Mode = iota
	ModeCreate
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeAppend:
		return "append"
	default:
		return "create_append"
	}
}

func parseMode(s string) (Mode, error) {
	switch s {
	case "create":
		return ModeCreate, nil
	case "append":
		return ModeAppend, nil
	case "create_append":
		return ModeCreateAppend, nil
	}
	return 0, fmt.Errorf("`mode` must be one of `create`, `append` or `create_append`, got `%s`", s)
}

// Arguments is the sink's validated configuration.
type Arguments struct {
	Host     string
	Port     uint16
	User     string
	Password string
	Table    string
	Mode     Mode
	Primary  string
}

// ParseArguments validates the operator factory arguments. Configuration
// errors are fatal: they fail the pipeline before execution.
func ParseArguments(args map[string]any) (Arguments, error) {
	out := Arguments{
		Host: "localhost",
		Port: 9000,
		User: "default",
		Mode: ModeCreateAppend,
	}
	for key, value := range args {
		switch key {
		case "url":
			s, ok := value.(string)
			if !ok {
				return Arguments{}, fmt.Errorf("`url` must be a string")
			}
			host, port, err := splitURL(s)
			if err != nil {
				return Arguments{}, err
			}
			out.Host, out.Port = host, port
		case "user":
			s, ok := value.(string)
			if !ok {
				return Arguments{}, fmt.Errorf("`user` must be a string")
			}
			out.User = s
		case "password":
			s, ok := value.(string)
			if !ok {
				return Arguments{}, fmt.Errorf("`password` must be a string")
			}
			out.Password = s
		case "table":
			s, ok := value.(string)
			if !ok {
				return Arguments{}, fmt.Errorf("`table` must be a string")
			}
			out.Table = s
		case "mode":
			s, ok := value.(string)
			if !ok {
				return Arguments{}, fmt.Errorf("`mode` must be a string")
			}
			mode, err := parseMode(s)
			if err != nil {
				return Arguments{}, err
			}
			out.Mode = mode
		case "primary":
			s, ok := value.(string)
			if !ok {
				return Arguments{}, fmt.Errorf("`primary` must be a field name")
			}
			if strings.Contains(s, ".") {
				return Arguments{}, fmt.Errorf("`primary` must be a top-level field")
			}
			out.Primary = s
		default:
			return Arguments{}, fmt.Errorf("unknown argument `%s`", key)
		}
	}
	if out.Table == "" {
		return Arguments{}, fmt.Errorf("`table` is required")
	}
	if out.Mode == ModeCreate && out.Primary == "" {
		return Arguments{}, fmt.Errorf("mode `create` requires `primary` to be set")
	}
	return out, nil
}

func splitURL(s string) (string, uint16, error) {
	host, portStr, found := strings.Cut(s, ":")
	if !found {
		return s, 9000, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in `url`: %q", portStr)
	}
	return host, uint16(port), nil
}

// SinkOperator writes batches into a ClickHouse table through the
// transformer tree.
type SinkOperator struct {
	args Arguments
	// connect is swapped by tests.
	connect func() (*EasyClient, error)
}

// NewSink builds the sink from validated arguments.
func NewSink(args Arguments) *SinkOperator {
	return &SinkOperator{
		args: args,
		connect: func() (*EasyClient, error) {
			return Connect(args.Host, args.Port, args.User, args.Password)
		},
	}
}

func init() {
	operator.Register("to_clickhouse", func(args map[string]any) (operator.Operator, error) {
		parsed, err := ParseArguments(args)
		if err != nil {
			return nil, err
		}
		return NewSink(parsed), nil
	})
}

func (*SinkOperator) Name() string { return "to_clickhouse" }

// Run consumes all input batches. The sink emits no batches of its own; an
// error diagnostic fails the pipeline.
func (o *SinkOperator) Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp operator.ControlPlane) error {
	dh := cp.Diagnostics()
	client, err := o.connect()
	if err != nil {
		diag.Errorf("failed to connect to ClickHouse: %v", err).Emit(dh)
		return err
	}
	defer client.Close()
	tableExisted, err := client.TableExists(ctx, o.args.Table)
	if err != nil {
		diag.Errorf("failed to check table `%s`: %v", o.args.Table, err).Emit(dh)
		return err
	}
	if o.args.Mode == ModeCreate && tableExisted {
		err := fmt.Errorf("mode is `create`, but table `%s` already exists", o.args.Table)
		diag.Errorf("%v", err).Emit(dh)
		return err
	}
	if o.args.Mode == ModeCreateAppend && !tableExisted && o.args.Primary == "" {
		err := fmt.Errorf("table `%s` does not exist, but no `primary` was specified", o.args.Table)
		diag.Errorf("%v", err).Emit(dh)
		return err
	}
	if o.args.Mode == ModeAppend && !tableExisted {
		err := fmt.Errorf("mode is `append`, but table `%s` does not exist", o.args.Table)
		diag.Errorf("%v", err).Emit(dh)
		return err
	}
	var transformations *SchemaTransformations
	if tableExisted {
		transformations, err = client.GetSchemaTransformations(ctx, o.args.Table)
		if err != nil {
			diag.Errorf("failed to read schema of table `%s`: %v", o.args.Table, err).Emit(dh)
			return err
		}
	}
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return nil
			}
			if b.Rows() == 0 || b.Columns() == 0 {
				continue
			}
			b = batch.ResolveEnumerations(b)
			if transformations == nil {
				transformations, err = client.CreateTable(ctx, o.args.Table, o.args.Primary, b.Schema)
				if err != nil {
					diag.Errorf("failed to create table `%s`: %v", o.args.Table, err).Emit(dh)
					return err
				}
				cp.Logger().Info("created table",
					zap.String("table", o.args.Table), zap.String("primary", o.args.Primary))
			}
			if err := o.process(ctx, client, transformations, b, dh); err != nil {
				diag.Errorf("failed to insert into `%s`: %v", o.args.Table, err).Emit(dh)
				return err
			}
			if resettable, ok := dh.(interface{ ResetBatch() }); ok {
				resettable.ResetBatch()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *SinkOperator) process(ctx context.Context, client *EasyClient, transformations *SchemaTransformations, b batch.Batch, dh diag.Handler) error {
	mask := make(Dropmask, b.Rows())
	// Phase 1: reconcile every input column against the table and mark
	// rows the table cannot hold.
	matched := make([]bool, transformations.Len())
	for i, f := range b.Schema.Fields {
		trafo, ok := transformations.Find(f.Name)
		if !ok {
			diag.Warningf("column `%s` does not exist in ClickHouse table `%s`",
				f.Name, o.args.Table).Emit(dh)
			continue
		}
		matched[transformations.index[f.Name]] = true
		col := b.Column(i)
		updated := trafo.UpdateDropmask(f.Name, col.Type, col.Array, mask, dh)
		if updated == DropSome {
			diag.Warningf("field `%s` contains null, but the ClickHouse table does not support null values", f.Name).
				Note("events will be dropped").Emit(dh)
		}
	}
	// Required table columns with no input column drop the whole batch.
	dropAll := false
	for i := 0; i < transformations.Len(); i++ {
		name, trafo := transformations.At(i)
		if matched[i] || trafo.TargetNullable() {
			continue
		}
		diag.Warningf("required column missing in input, all events will be dropped").
			Note("column `%s` is missing", name).Emit(dh)
		dropAll = true
	}
	if dropAll {
		mask.Fill()
	}
	kept := b.Rows() - mask.Count()
	if kept == 0 {
		resetAll(transformations)
		return nil
	}
	// Phase 2: materialize the block in table column order.
	columns := make([]Column, 0, transformations.Len())
	for i := 0; i < transformations.Len(); i++ {
		name, trafo := transformations.At(i)
		col, ok := b.ColumnByName(name)
		if !ok {
			null, _ := trafo.CreateNullColumn(kept)
			columns = append(columns, null)
			continue
		}
		columns = append(columns, trafo.CreateColumn(name, col.Type, col.Array, mask, dh))
	}
	return client.Insert(ctx, o.args.Table, columns)
}

// resetAll releases per-batch transformer state when a batch is dropped
// before phase 2 consumed it.
func resetAll(transformations *SchemaTransformations) {
	for i := 0; i < transformations.Len(); i++ {
		_, trafo := transformations.At(i)
		trafo.resetPhase()
	}
}
