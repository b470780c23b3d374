// Package source feeds the pipeline from a PostgreSQL logical replication
// stream, turning row changes into events without polling the table.
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"go.uber.org/zap"

	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
	"github.com/yourusername/stream-monitor/internal/pipeline"
)

type PostgresSource struct {
	config    config.SourceConfig
	dbConfig  config.DatabaseConfig
	pipe      *pipeline.Pipeline
	logger    *zap.Logger
	conn      *pgconn.PgConn
	relations map[uint32]*pglogrepl.RelationMessage
	walPos    pglogrepl.LSN
}

func NewPostgresSource(cfg config.SourceConfig, dbCfg config.DatabaseConfig, pipe *pipeline.Pipeline, logger *zap.Logger) *PostgresSource {
	return &PostgresSource{
		config:    cfg,
		dbConfig:  dbCfg,
		pipe:      pipe,
		logger:    logger,
		relations: make(map[uint32]*pglogrepl.RelationMessage),
	}
}

// Run connects, ensures the replication slot exists, and streams row
// changes into the pipeline until the context is cancelled.
func (s *PostgresSource) Run(ctx context.Context) error {
	connConfig, err := pgconn.ParseConfig(fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?replication=database",
		s.dbConfig.User, s.dbConfig.Password, s.dbConfig.Host, s.dbConfig.Port, s.dbConfig.Database,
	))
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	conn, err := pgconn.ConnectConfig(ctx, connConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s.conn = conn
	defer s.conn.Close(context.Background())

	// Create replication slot if it doesn't exist
	_, err = pglogrepl.CreateReplicationSlot(ctx, s.conn, s.config.SlotName, "pgoutput", pglogrepl.CreateReplicationSlotOptions{Temporary: false})
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "SQLSTATE 42710") {
			return fmt.Errorf("failed to create replication slot: %w", err)
		}
	}

	s.logger.Info("starting logical replication", zap.String("slot", s.config.SlotName))
	err = pglogrepl.StartReplication(ctx, s.conn, s.config.SlotName, 0, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{"proto_version '1'", fmt.Sprintf("publication_names '%s'", s.config.Publication)},
	})
	if err != nil {
		return fmt.Errorf("failed to start replication: %w", err)
	}

	return s.listen(ctx)
}

func (s *PostgresSource) listen(ctx context.Context) error {
	standbyMessageTimeout := time.Second * 10
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(nextStandbyMessageDeadline) {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, s.conn, pglogrepl.StandbyStatusUpdate{WALWritePosition: s.walPos})
			if err != nil {
				s.logger.Warn("failed to send standby status update", zap.Error(err))
			}
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		msg, err := s.conn.ReceiveMessage(recvCtx)
		cancel()

		if err != nil {
			if pgconn.Timeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receiving replication message: %w", err)
		}

		switch msg := msg.(type) {
		case *pgproto3.CopyData:
			switch msg.Data[0] {
			case pglogrepl.PrimaryKeepaliveMessageByteID:
				pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
				if err != nil {
					s.logger.Warn("parsing keepalive failed", zap.Error(err))
					continue
				}
				if pkm.ReplyRequested {
					nextStandbyMessageDeadline = time.Time{}
				}

			case pglogrepl.XLogDataByteID:
				xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
				if err != nil {
					s.logger.Warn("parsing xlog data failed", zap.Error(err))
					continue
				}

				s.processLogicalMsg(ctx, xld)
				s.walPos = xld.WALStart + pglogrepl.LSN(len(xld.WALData))
			}
		default:
			if msg != nil {
				s.logger.Warn("unexpected replication message", zap.String("type", fmt.Sprintf("%T", msg)))
			}
		}
	}
}

func (s *PostgresSource) processLogicalMsg(ctx context.Context, xld pglogrepl.XLogData) {
	logicalMsg, err := pglogrepl.Parse(xld.WALData)
	if err != nil {
		s.logger.Warn("parsing logical message failed", zap.Error(err))
		return
	}

	switch logicalMsg := logicalMsg.(type) {
	case *pglogrepl.RelationMessage:
		s.relations[logicalMsg.RelationID] = logicalMsg

	case *pglogrepl.InsertMessage:
		s.publishTuple(ctx, xld, logicalMsg.RelationID, logicalMsg.Tuple)

	case *pglogrepl.UpdateMessage:
		s.publishTuple(ctx, xld, logicalMsg.RelationID, logicalMsg.NewTuple)
	}
}

func (s *PostgresSource) publishTuple(ctx context.Context, xld pglogrepl.XLogData, relationID uint32, tuple *pglogrepl.TupleData) {
	rel, ok := s.relations[relationID]
	if !ok {
		s.logger.Warn("unknown relation", zap.Uint32("relation_id", relationID))
		return
	}
	if tuple == nil {
		return
	}

	data := extractData(rel, tuple)

	keyCol := s.config.KeyColumn
	if keyCol == "" {
		keyCol = "id"
	}
	key, ok := data[keyCol]
	if !ok || key == "" {
		return
	}

	value := 0.0
	if raw, ok := data[s.config.ValueColumn]; ok {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return
		}
		value = parsed
	}

	// Replication lag stands in for end-to-end latency: how long a change
	// took to travel from commit on the primary to this process.
	lag := time.Since(xld.ServerTime).Seconds()
	if lag < 0 {
		lag = 0
	}

	ev := model.Event{
		Timestamp: xld.ServerTime,
		Key:       key,
		Value:     value,
		Latency:   lag,
	}
	if err := s.pipe.Publish(ctx, ev); err != nil && ctx.Err() == nil {
		s.logger.Warn("publish failed", zap.Error(err))
	}
}

func extractData(rel *pglogrepl.RelationMessage, tuple *pglogrepl.TupleData) map[string]string {
	data := make(map[string]string)
	for idx, col := range tuple.Columns {
		if idx >= len(rel.Columns) {
			break
		}
		colName := rel.Columns[idx].Name
		switch col.DataType {
		case 't': // text
			data[colName] = string(col.Data)
		case 'n', 'u': // null / unchanged toast
		}
	}
	return data
}
