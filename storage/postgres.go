package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"versus/domain"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (repo *PostgresRepo) Close() {
	repo.pool.Close()
}

func wrapQueryError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
}

func (repo *PostgresRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	user := domain.User{Username: username}

	row := repo.pool.QueryRow(ctx, "SELECT id, password_hash FROM users WHERE username = $1", username)
	if err := row.Scan(&user.Id, &user.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrapQueryError(err)
	}

	return user, nil
}

func (repo *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := repo.pool.QueryRow(ctx, "SELECT username, password_hash FROM users WHERE id = $1", id)
	if err := row.Scan(&user.Username, &user.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrapQueryError(err)
	}

	return user, nil
}

func (repo *PostgresRepo) CreateUser(ctx context.Context, username string, passwordHash string) (string, error) {
	row := repo.pool.QueryRow(ctx, "INSERT INTO users(username, password_hash) VALUES($1, $2) RETURNING id", username, passwordHash)

	var id string
	if err := row.Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", domain.ErrDuplicateUsername
		}
		return "", wrapQueryError(err)
	}

	return id, nil
}

// RandomWords returns up to count words picked at random from the words table.
func (repo *PostgresRepo) RandomWords(ctx context.Context, count int) ([]string, error) {
	rows, err := repo.pool.Query(ctx, "SELECT word FROM words ORDER BY RANDOM() LIMIT $1", count)
	if err != nil {
		return nil, wrapQueryError(err)
	}

	words, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapQueryError(err)
	}
	return words, nil
}

const upsertStatsQuery = `
INSERT INTO user_stats (user_id, matches_played, wins, avg_wpm, avg_accuracy, best_wpm)
VALUES ($1, 1, $2, $3, $4, $3)
ON CONFLICT (user_id) DO UPDATE SET
    matches_played = user_stats.matches_played + 1,
    wins           = user_stats.wins + EXCLUDED.wins,
    avg_wpm        = (user_stats.avg_wpm * user_stats.matches_played + EXCLUDED.avg_wpm) / (user_stats.matches_played + 1),
    avg_accuracy   = (user_stats.avg_accuracy * user_stats.matches_played + EXCLUDED.avg_accuracy) / (user_stats.matches_played + 1),
    best_wpm       = GREATEST(user_stats.best_wpm, EXCLUDED.best_wpm)`

// RecordMatch stores the match, one participation row per finisher and the
// aggregate stats update in a single transaction.
func (repo *PostgresRepo) RecordMatch(ctx context.Context, result domain.MatchResult) error {
	err := pgx.BeginFunc(ctx, repo.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO matches (id, room_code, passage, started_at, ended_at) VALUES ($1, $2, $3, $4, $5)",
			result.Id, result.RoomCode, result.Passage, result.StartedAt, result.EndedAt,
		)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, p := range result.Participants {
			wins := 0
			if p.Ordinal == 1 {
				wins = 1
			}
			batch.Queue(
				"INSERT INTO match_participants (match_id, user_id, wpm, accuracy, ordinal) VALUES ($1, $2, $3, $4, $5)",
				result.Id, p.UserId, p.Wpm, p.Accuracy, p.Ordinal,
			)
			batch.Queue(upsertStatsQuery, p.UserId, wins, p.Wpm, p.Accuracy)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

// GetStats returns zeroed stats for users that never finished a match.
func (repo *PostgresRepo) GetStats(ctx context.Context, userId string) (domain.UserStats, error) {
	stats := domain.UserStats{UserId: userId}

	row := repo.pool.QueryRow(ctx,
		"SELECT matches_played, wins, avg_wpm, avg_accuracy, best_wpm FROM user_stats WHERE user_id = $1", userId)
	err := row.Scan(&stats.MatchesPlayed, &stats.Wins, &stats.AvgWpm, &stats.AvgAccuracy, &stats.BestWpm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}
		return domain.UserStats{}, wrapQueryError(err)
	}
	return stats, nil
}

func (repo *PostgresRepo) AverageWpm(ctx context.Context, userId string) (float64, error) {
	stats, err := repo.GetStats(ctx, userId)
	if err != nil {
		return 0, err
	}
	return stats.AvgWpm, nil
}
