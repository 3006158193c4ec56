package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore binds the repositories to a pool, or to a transaction when
// produced by WithinTx.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func (s *PostgresStore) Chats() ChatStore       { return NewChatRepository(s.db) }
func (s *PostgresStore) Payments() PaymentStore { return NewPaymentRepository(s.db) }
func (s *PostgresStore) Messages() MessageStore { return NewMessageRepository(s.db) }
func (s *PostgresStore) Users() UserStore       { return NewUserRepository(s.db) }
func (s *PostgresStore) TrainerProfiles() TrainerProfileStore {
	return NewTrainerProfileRepository(s.db)
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PostgresStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
