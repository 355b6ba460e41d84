package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/tutorlink/internal/identity"
)

// Unique violations on join_code or room_name are retried with fresh codes.
const maxCodeAttempts = 5

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	pool       *pgxpool.Pool
	codeLength int
}

func NewPostgresStore(ctx context.Context, databaseURL string, codeLength int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if codeLength <= 0 {
		codeLength = 8
	}
	return &PostgresStore{pool: pool, codeLength: codeLength}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tutoring_sessions (
			id TEXT PRIMARY KEY,
			tutor_id BIGINT NOT NULL,
			learner_id BIGINT NULL,
			join_code TEXT NOT NULL UNIQUE,
			room_name TEXT NOT NULL UNIQUE,
			subject TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT '',
			schedule_day TEXT NOT NULL DEFAULT '',
			schedule_time TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tutoring_sessions_tutor ON tutoring_sessions (tutor_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_tutoring_sessions_learner ON tutoring_sessions (learner_id, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const sessionColumns = `id, tutor_id, learner_id, join_code, room_name, subject, level, schedule_day, schedule_time, created_at`

func (s *PostgresStore) Create(ctx context.Context, tutorID int64, req CreateRequest) (Session, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		row := s.pool.QueryRow(ctx,
			`INSERT INTO tutoring_sessions (id, tutor_id, join_code, room_name, subject, level, schedule_day, schedule_time, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING `+sessionColumns,
			uuid.NewString(),
			tutorID,
			generateCode(s.codeLength),
			newRoomName(),
			req.Subject,
			req.Level,
			req.ScheduleDay,
			req.ScheduleTime,
			time.Now().UTC(),
		)
		sess, err := scanSession(row)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return Session{}, fmt.Errorf("create session: %w", err)
		}
		return sess, nil
	}
	return Session{}, errors.New("create session: could not allocate a unique join code")
}

func (s *PostgresStore) Join(ctx context.Context, learnerID int64, code string) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tutoring_sessions SET learner_id = $1
		 WHERE join_code = $2 AND learner_id IS NULL
		 RETURNING `+sessionColumns,
		learnerID,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrInvalidJoinCode
	}
	if err != nil {
		return Session{}, fmt.Errorf("join session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	return s.getOne(ctx, `SELECT `+sessionColumns+` FROM tutoring_sessions WHERE id = $1`, id)
}

func (s *PostgresStore) GetByRoom(ctx context.Context, roomName string) (Session, error) {
	return s.getOne(ctx, `SELECT `+sessionColumns+` FROM tutoring_sessions WHERE room_name = $1`, roomName)
}

func (s *PostgresStore) ListForTutor(ctx context.Context, tutorID int64) ([]Session, error) {
	return s.list(ctx, `SELECT `+sessionColumns+` FROM tutoring_sessions WHERE tutor_id = $1 ORDER BY created_at DESC`, tutorID)
}

func (s *PostgresStore) ListForLearner(ctx context.Context, learnerID int64) ([]Session, error) {
	return s.list(ctx, `SELECT `+sessionColumns+` FROM tutoring_sessions WHERE learner_id = $1 ORDER BY created_at DESC`, learnerID)
}

func (s *PostgresStore) Delete(ctx context.Context, id string, role identity.Role, callerID int64) (Session, error) {
	column := "tutor_id"
	switch role {
	case identity.RoleTutor:
	case identity.RoleLearner:
		column = "learner_id"
	default:
		return Session{}, ErrForbidden
	}
	row := s.pool.QueryRow(ctx,
		`DELETE FROM tutoring_sessions WHERE id = $1 AND `+column+` = $2 RETURNING `+sessionColumns,
		id,
		callerID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrForbidden
	}
	if err != nil {
		return Session{}, fmt.Errorf("delete session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]Session, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID,
		&sess.TutorID,
		&sess.LearnerID,
		&sess.JoinCode,
		&sess.RoomName,
		&sess.Subject,
		&sess.Level,
		&sess.ScheduleDay,
		&sess.ScheduleTime,
		&sess.CreatedAt,
	)
	return sess, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
