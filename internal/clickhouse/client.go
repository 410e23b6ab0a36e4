package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/tenzir/tenzir-sub011/internal/types"
)

// SchemaTransformations maps the table's column names to their transformer
// trees, in the table's column order.
type SchemaTransformations struct {
	columns []namedTransformer
	index   map[string]int
}

func newSchemaTransformations() *SchemaTransformations {
	return &SchemaTransformations{index: map[string]int{}}
}

func (s *SchemaTransformations) add(name string, t Transformer) error {
	if _, dup := s.index[name]; dup {
		return fmt.Errorf("duplicate column `%s`", name)
	}
	s.index[name] = len(s.columns)
	s.columns = append(s.columns, namedTransformer{name: name, trafo: t})
	return nil
}

// Len returns the number of table columns.
func (s *SchemaTransformations) Len() int {
	return len(s.columns)
}

// At returns the i-th column in table order.
func (s *SchemaTransformations) At(i int) (string, Transformer) {
	c := s.columns[i]
	return c.name, c.trafo
}

// Find resolves a column by name.
func (s *SchemaTransformations) Find(name string) (Transformer, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.columns[i].trafo, true
}

// Conn is the subset of the native-protocol client the sink needs; it exists
// so that tests can substitute the network.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	AppendRows(ctx context.Context, table string, rows [][]any) error
	Close() error
}

// Row mirrors driver.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows mirrors driver.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// nativeConn adapts clickhouse-go to Conn.
type nativeConn struct {
	conn driver.Conn
}

func (c *nativeConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *nativeConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.conn.QueryRow(ctx, query, args...)
}

func (c *nativeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *nativeConn) AppendRows(ctx context.Context, table string, rows [][]any) error {
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (c *nativeConn) Close() error {
	return c.conn.Close()
}

// EasyClient wraps the connection with the sink's schema bookkeeping.
type EasyClient struct {
	conn Conn
}

// Connect opens a native-protocol connection.
func Connect(host string, port uint16, user, password string) (*EasyClient, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Username: user,
			Password: password,
		},
	})
	if err != nil {
		return nil, err
	}
	return &EasyClient{conn: &nativeConn{conn: conn}}, nil
}

// NewEasyClient wraps an existing connection, e.g. a test double.
func NewEasyClient(conn Conn) *EasyClient {
	return &EasyClient{conn: conn}
}

// Close releases the connection.
func (c *EasyClient) Close() error {
	return c.conn.Close()
}

// TableExists probes for the table.
func (c *EasyClient) TableExists(ctx context.Context, table string) (bool, error) {
	var exists uint8
	err := c.conn.QueryRow(ctx, "EXISTS TABLE "+table).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// GetSchemaTransformations builds the transformer tree from the live table
// schema.
func (c *EasyClient) GetSchemaTransformations(ctx context.Context, table string) (*SchemaTransformations, error) {
	rows, err := c.conn.Query(ctx,
		"SELECT name, type FROM system.columns WHERE table = ? ORDER BY position", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := newSchemaTransformations()
	for rows.Next() {
		var name, typename string
		if err := rows.Scan(&name, &typename); err != nil {
			return nil, err
		}
		trafo, err := TransformerFor(RemoveNonSignificantWhitespace(typename))
		if err != nil {
			return nil, fmt.Errorf("column `%s`: %w", name, err)
		}
		if err := out.add(name, trafo); err != nil {
			return nil, err
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("table `%s` has no columns", table)
	}
	return out, nil
}

// CreateTable creates the table for the schema and returns the matching
// transformations. Every column is Nullable except the primary.
func (c *EasyClient) CreateTable(ctx context.Context, table, primary string, schema types.RecordType) (*SchemaTransformations, error) {
	if schema.FieldIndex(primary) < 0 {
		return nil, fmt.Errorf("primary `%s` is not a top-level field", primary)
	}
	elements, err := PlainTupleElements(schema, primary)
	if err != nil {
		return nil, err
	}
	ddl := fmt.Sprintf(
		"CREATE TABLE %s %s ENGINE = MergeTree ORDER BY %s SETTINGS allow_nullable_key=1",
		table, elements, primary)
	if err := c.conn.Exec(ctx, ddl); err != nil {
		return nil, err
	}
	out := newSchemaTransformations()
	for _, f := range schema.Fields {
		trafo, err := TransformerForType(f.Type, f.Name != primary)
		if err != nil {
			return nil, err
		}
		if err := out.add(f.Name, trafo); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Insert sends the materialized columns as one block. All columns must have
// equal length and follow the table's column order.
func (c *EasyClient) Insert(ctx context.Context, table string, columns []Column) error {
	if len(columns) == 0 {
		return nil
	}
	n := len(columns[0])
	rows := make([][]any, n)
	for r := range rows {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = col[r]
		}
		rows[r] = row
	}
	return c.conn.AppendRows(ctx, table, rows)
}
