// Package sqlmod is a backend of named SQL statements. Source files hold
// blocks introduced by `-- name: <symbol>`; a block that also carries an
// `-- exec` line is run as a statement instead of a query.
//
// The database comes from the module config:
//
//	config:
//	  driver: sqlite
//	  dsn: file:app.db
package sqlmod

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

// Statement is one named block of a source file.
type Statement struct {
	Name string
	SQL  string
	Exec bool
	File string
}

type Module struct {
	def        module.Definition
	opts       module.AssembleOptions
	log        *slog.Logger
	db         *sql.DB
	statements map[string]Statement
}

var _ module.Module = (*Module)(nil)

func New(def module.Definition) *Module {
	return &Module{def: def, log: slog.Default(), statements: map[string]Statement{}}
}

func (m *Module) Name() string { return m.def.Name }

func (m *Module) Root() string { return m.def.Root }

func (m *Module) Initialize(ctx context.Context, args module.InitArgs) module.Status[struct{}] {
	m.opts = module.AssembleOptions{IncludeNonePrior: args.IncludeNonePrior}
	m.log = args.Log().With("module", m.def.Name)

	for _, file := range m.def.FilterExt(".sql") {
		stmts, err := ParseFile(file)
		if err != nil {
			return module.Errf[struct{}]("failed to load file: %s - %s %v", m.def.Name, file, err)
		}
		for _, s := range stmts {
			m.statements[s.Name] = s
		}
		m.log.Info("Loaded source file", "file", file, "statements", len(stmts))
	}

	driver, _ := m.def.Config["driver"].(string)
	dsn, _ := m.def.Config["dsn"].(string)
	if driver == "" || dsn == "" {
		return module.Errf[struct{}]("module %s: config needs driver and dsn", m.def.Name)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return module.Errf[struct{}]("module %s: open %s: %v", m.def.Name, driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return module.Errf[struct{}]("module %s: ping %s: %v", m.def.Name, driver, err)
	}
	m.db = db
	return module.Ok(struct{}{})
}

// ParseFile splits a source file into named statements.
func ParseFile(path string) ([]Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		stmts []Statement
		cur   *Statement
		body  strings.Builder
	)
	flush := func() {
		if cur != nil {
			cur.SQL = strings.TrimSpace(body.String())
			stmts = append(stmts, *cur)
		}
		body.Reset()
	}

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if rest, ok := strings.CutPrefix(trimmed, "-- name:"); ok {
			flush()
			name := strings.TrimSpace(rest)
			if name == "" {
				return nil, fmt.Errorf("line %d: empty statement name", line)
			}
			cur = &Statement{Name: name, File: path}
			continue
		}
		if trimmed == "-- exec" && cur != nil {
			cur.Exec = true
			continue
		}
		if cur == nil {
			continue
		}
		body.WriteString(text)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return stmts, nil
}

// Bind turns an invocation into driver arguments: plain args bind
// positionally, a One definition binds its fields by name, a Many
// definition binds its items positionally.
func Bind(inv module.Invocation) []any {
	var items []value.Value
	if inv.IsRecord() {
		if args, ok := inv.Record[module.FieldArgs].AsList(); ok {
			items = append(items, args...)
		}
		if def, ok := inv.Record[module.FieldDefinition]; ok {
			items = append(items, def)
		}
	} else {
		items = inv.Positional
	}

	var binds []any
	for _, v := range items {
		d, ok := v.AsDefinition()
		if !ok {
			binds = append(binds, bindable(v))
			continue
		}
		if fields, ok := d.Fields(); ok {
			for _, k := range value.SortedKeys(fields) {
				binds = append(binds, sql.Named(k, bindable(fields[k])))
			}
		} else if many, ok := d.Items(); ok {
			for _, item := range many {
				binds = append(binds, bindable(item))
			}
		}
	}
	return binds
}

// bindable maps a value to something every driver accepts. Nested
// values are bound as JSON text.
func bindable(v value.Value) any {
	switch v.Kind() {
	case value.KindObject, value.KindList, value.KindFunctionCall, value.KindDefinition, value.KindFile:
		data, err := gojson.Marshal(v.Plain())
		if err != nil {
			return v.String()
		}
		return string(data)
	case value.KindError:
		return v.String()
	}
	return v.ToNative()
}

func (m *Module) FunctionCall(ctx context.Context, call module.Call) module.Status[value.Value] {
	stmt, ok := m.statements[call.Name]
	if !ok || m.db == nil {
		return module.NotFound[value.Value]()
	}
	binds := Bind(module.Assemble(m.def.Convention, call, m.opts))

	if stmt.Exec {
		res, err := m.db.ExecContext(ctx, stmt.SQL, binds...)
		if err != nil {
			return module.Errf[value.Value]("sql exec failed: %s.%s - %v", m.def.Name, call.Name, err)
		}
		out := map[string]value.Value{}
		if n, err := res.RowsAffected(); err == nil {
			out["rows_affected"] = value.Long(n)
		}
		if id, err := res.LastInsertId(); err == nil {
			out["last_insert_id"] = value.Long(id)
		}
		return module.Ok(value.Object(out))
	}

	rows, err := m.db.QueryContext(ctx, stmt.SQL, binds...)
	if err != nil {
		return module.Errf[value.Value]("sql query failed: %s.%s - %v", m.def.Name, call.Name, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return module.Errf[value.Value]("sql scan failed: %s.%s - %v", m.def.Name, call.Name, err)
	}
	return module.Ok(result)
}

func scanRows(rows *sql.Rows) (value.Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return value.None(), err
	}
	var out []value.Value
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return value.None(), err
		}
		row := make(map[string]value.Value, len(cols))
		for i, col := range cols {
			row[col] = fromColumn(cells[i])
		}
		out = append(out, value.Object(row))
	}
	return value.List(out), rows.Err()
}

func fromColumn(cell any) value.Value {
	if t, ok := cell.(time.Time); ok {
		return value.String(t.Format(time.RFC3339Nano))
	}
	return value.FromNative(cell)
}

func (m *Module) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
