package analytics

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/dealeros/carbot/agent/contract"
)

// EventRow is the append-only analytics record. The engine never reads these
// back; reporting happens in SQL.
type EventRow struct {
	bun.BaseModel `bun:"table:agent_events,alias:ev"`

	ID             int64     `bun:"id,pk,autoincrement"`
	Kind           string    `bun:"kind,notnull"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Role           string    `bun:"role"`
	Tool           string    `bun:"tool"`
	Status         string    `bun:"status"`
	FromStage      string    `bun:"from_stage"`
	ToStage        string    `bun:"to_stage"`
	At             time.Time `bun:"at,notnull"`
}

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"5s"`
}

// PostgresSink inserts one row per event. Writes happen out of band so a slow
// or absent database never stalls a conversation turn.
type PostgresSink struct {
	db           *bun.DB
	writeTimeout time.Duration
}

func NewPostgresSink(cfg PostgresConfig) *PostgresSink {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresSink{
		db:           bun.NewDB(sqldb, pgdialect.New()),
		writeTimeout: timeout,
	}
}

// Init creates the events table if needed.
func (s *PostgresSink) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*EventRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *PostgresSink) Emit(ctx context.Context, ev contract.Event) {
	row := &EventRow{
		Kind:           ev.Kind,
		ConversationID: ev.ConversationID,
		Role:           string(ev.Role),
		Tool:           ev.Tool,
		Status:         ev.Status,
		FromStage:      ev.FromStage,
		ToStage:        ev.ToStage,
		At:             ev.At,
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		if _, err := s.db.NewInsert().Model(row).Exec(writeCtx); err != nil {
			log.Warn().Err(err).Str("kind", row.Kind).Msg("analytics: event insert failed")
		}
	}()
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
