package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"versus/domain"
	"versus/migrations"
	"versus/storage"
)

var (
	repo        *storage.PostgresRepo
	redisClient *redis.Client
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine3.22",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testusername"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	if err := migrations.Migrate(connString); err != nil {
		panic(err)
	}

	repo, err = storage.NewPostgresRepo(ctx, connString)
	if err != nil {
		panic(err)
	}

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		panic(err)
	}
	redisURL, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		panic(err)
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(err)
	}
	redisClient = redis.NewClient(opts)

	code := m.Run()

	redisClient.Close()
	repo.Close()
	redisContainer.Terminate(ctx)
	postgresContainer.Terminate(ctx)
	os.Exit(code)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUser", func(t *testing.T) {
		id, err := repo.CreateUser(ctx, "morpheus", "hashed_secret")
		assert.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("CreateUser_Duplicate", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, "morpheus", "new_hash")
		assert.ErrorIs(t, err, domain.ErrDuplicateUsername)
	})

	t.Run("GetUserByUsername", func(t *testing.T) {
		user, err := repo.GetUserByUsername(ctx, "morpheus")
		assert.NoError(t, err)
		assert.Equal(t, "hashed_secret", user.PasswordHash)
		assert.NotEmpty(t, user.Id)
	})

	t.Run("GetUserByUsername_NotFound", func(t *testing.T) {
		_, err := repo.GetUserByUsername(ctx, "ghost_user")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("GetUserById", func(t *testing.T) {
		id, err := repo.CreateUser(ctx, "tester2", "hash2")
		require.NoError(t, err)

		user, err := repo.GetUserById(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, "tester2", user.Username)
	})
}

func TestRandomWords(t *testing.T) {
	words, err := repo.RandomWords(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, words, 5)
	for _, w := range words {
		assert.NotEmpty(t, w)
	}
}

func TestRecordMatch(t *testing.T) {
	ctx := context.Background()
	winner, err := repo.CreateUser(ctx, "winner", "h")
	require.NoError(t, err)
	runnerUp, err := repo.CreateUser(ctx, "runner_up", "h")
	require.NoError(t, err)

	record := func(winnerWpm, runnerUpWpm float64) {
		t.Helper()
		now := time.Now()
		err := repo.RecordMatch(ctx, domain.MatchResult{
			Id:        uuid.NewString(),
			RoomCode:  "ABC123",
			Passage:   "the quick brown fox",
			StartedAt: now.Add(-time.Minute),
			EndedAt:   now,
			Participants: []domain.Participation{
				{UserId: winner, Username: "winner", Wpm: winnerWpm, Accuracy: 100, Ordinal: 1},
				{UserId: runnerUp, Username: "runner_up", Wpm: runnerUpWpm, Accuracy: 90, Ordinal: 2},
			},
		})
		require.NoError(t, err)
	}

	record(80, 60)
	record(100, 40)

	stats, err := repo.GetStats(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MatchesPlayed)
	assert.Equal(t, 2, stats.Wins)
	assert.InDelta(t, 90, stats.AvgWpm, 0.001)
	assert.InDelta(t, 100, stats.BestWpm, 0.001)

	stats, err = repo.GetStats(ctx, runnerUp)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Wins)
	assert.InDelta(t, 50, stats.AvgWpm, 0.001)
	assert.InDelta(t, 90, stats.AvgAccuracy, 0.001)
	assert.InDelta(t, 60, stats.BestWpm, 0.001)
}

func TestRecordMatch_UnknownUserRollsBack(t *testing.T) {
	ctx := context.Background()
	matchId := uuid.NewString()
	err := repo.RecordMatch(ctx, domain.MatchResult{
		Id:        matchId,
		RoomCode:  "ZZZ999",
		Passage:   "x",
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
		Participants: []domain.Participation{
			{UserId: uuid.NewString(), Wpm: 10, Accuracy: 50, Ordinal: 1},
		},
	})
	assert.ErrorIs(t, err, domain.UnexpectedDatabaseError)
}

func TestGetStats_NoMatches(t *testing.T) {
	ctx := context.Background()
	id, err := repo.CreateUser(ctx, "newbie", "h")
	require.NoError(t, err)

	wpm, err := repo.AverageWpm(ctx, id)
	assert.NoError(t, err)
	assert.Zero(t, wpm)
}
