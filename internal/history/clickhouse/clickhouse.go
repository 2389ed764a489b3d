package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/glosar/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options configures the connection. Zero values use the server defaults.
type Options struct {
	Database string
	Username string
	Password string
}

func New(addr, table string, opts ...Options) (*Sink, error) {
	o := Options{Database: "default", Username: "default"}
	if len(opts) > 0 {
		if opts[0].Database != "" {
			o.Database = opts[0].Database
		}
		if opts[0].Username != "" {
			o.Username = opts[0].Username
		}
		o.Password = opts[0].Password
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			occurred_at DateTime64(6),
			run_id String,
			type LowCardinality(String),
			seq UInt32,
			guide_index UInt32,
			total UInt32,
			numero_guia String,
			senha String,
			status LowCardinality(String),
			message String,
			from_state LowCardinality(String),
			to_state LowCardinality(String)
		) ENGINE = MergeTree()
		ORDER BY (run_id, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, run_id, type, seq, guide_index, total, numero_guia, senha, status, message, from_state, to_state) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		e.RunID,
		string(e.Type),
		uint32(e.Seq),
		uint32(e.Index),
		uint32(e.Total),
		e.NumeroGuia,
		e.Senha,
		e.Status,
		e.Message,
		e.FromState,
		e.ToState,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
