package repository

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
	"github.com/noah-isme/sma-adp-mobile/pkg/storage"
)

type credentialStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func newFileRepo(t *testing.T, dir, secret string) *CredentialFileRepository {
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	sealer, err := storage.NewSealer(secret)
	require.NoError(t, err)
	return NewCredentialFileRepository(store, sealer, "credentials.bin", nil)
}

func exerciseCredentialStore(t *testing.T, repo credentialStore) {
	ctx := context.Background()

	_, found, err := repo.Get(ctx, models.CredentialAuthToken)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Delete(ctx, models.CredentialAuthToken))

	require.NoError(t, repo.Put(ctx, models.CredentialAuthToken, "token-1"))
	require.NoError(t, repo.Put(ctx, models.CredentialUserData, `{"id":"1"}`))
	require.NoError(t, repo.Put(ctx, models.CredentialAuthToken, "token-2"))

	value, found, err := repo.Get(ctx, models.CredentialAuthToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "token-2", value)

	require.NoError(t, repo.Delete(ctx, models.CredentialAuthToken))
	_, found, err = repo.Get(ctx, models.CredentialAuthToken)
	require.NoError(t, err)
	assert.False(t, found)

	value, found, err = repo.Get(ctx, models.CredentialUserData)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"1"}`, value)
}

func TestCredentialMemoryRepository(t *testing.T) {
	exerciseCredentialStore(t, NewCredentialMemoryRepository())
}

func TestCredentialFileRepository(t *testing.T) {
	exerciseCredentialStore(t, newFileRepo(t, t.TempDir(), "secret"))
}

func TestCredentialFileRepositorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newFileRepo(t, dir, "secret")
	require.NoError(t, first.Put(ctx, models.CredentialRefreshToken, "refresh-1"))

	second := newFileRepo(t, dir, "secret")
	value, found, err := second.Get(ctx, models.CredentialRefreshToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "refresh-1", value)

	wrongSecret := newFileRepo(t, dir, "other")
	_, _, err = wrongSecret.Get(ctx, models.CredentialRefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrSealedDataInvalid)
}

func TestCredentialFileRepositoryRemovesFileWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	repo := newFileRepo(t, dir, "secret")

	require.NoError(t, repo.Put(ctx, models.CredentialAuthToken, "token"))
	require.NoError(t, repo.Delete(ctx, models.CredentialAuthToken))

	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	_, found, err := store.Load("credentials.bin")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCredentialFileRepositoryRecoversFromUnreadableFile(t *testing.T) {
	cases := map[string][]byte{
		"garbage":      []byte("not a sealed credential file"),
		"wrong secret": nil,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			store, err := storage.NewLocalStorage(dir)
			require.NoError(t, err)
			if contents == nil {
				other := newFileRepo(t, dir, "rotated")
				require.NoError(t, other.Put(ctx, models.CredentialAuthToken, "old"))
			} else {
				require.NoError(t, store.Save("credentials.bin", contents))
			}

			core, logs := observer.New(zap.WarnLevel)
			sealer, err := storage.NewSealer("secret")
			require.NoError(t, err)
			repo := NewCredentialFileRepository(store, sealer, "credentials.bin", zap.New(core))

			_, _, err = repo.Get(ctx, models.CredentialAuthToken)
			require.Error(t, err)

			require.NoError(t, repo.Delete(ctx, models.CredentialAuthToken))
			_, found, err := store.Load("credentials.bin")
			require.NoError(t, err)
			assert.False(t, found)
			require.Equal(t, 1, logs.FilterMessage("discarding unreadable credential file").Len())

			require.NoError(t, repo.Put(ctx, models.CredentialAuthToken, "fresh"))
			value, found, err := repo.Get(ctx, models.CredentialAuthToken)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "fresh", value)
		})
	}
}

func TestCredentialFileRepositoryPutReplacesUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save("credentials.bin", []byte{0x01, 0x02, 0x03}))
	repo := newFileRepo(t, dir, "secret")

	require.NoError(t, repo.Put(ctx, models.CredentialRefreshToken, "refresh"))
	value, found, err := repo.Get(ctx, models.CredentialRefreshToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "refresh", value)
}

func TestCredentialPostgresRepositoryGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialPostgresRepository(db, "device-1")

	rows := sqlmock.NewRows([]string{"namespace", "key", "value"}).AddRow("device-1", "authToken", "token")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT namespace, key, value FROM session_credentials WHERE namespace = $1 AND key = $2 LIMIT 1")).
		WithArgs("device-1", "authToken").
		WillReturnRows(rows)

	value, found, err := repo.Get(context.Background(), models.CredentialAuthToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "token", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialPostgresRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialPostgresRepository(db, "device-1")

	mock.ExpectQuery("SELECT namespace, key, value FROM session_credentials").
		WithArgs("device-1", "userData").
		WillReturnRows(sqlmock.NewRows([]string{"namespace", "key", "value"}))

	_, found, err := repo.Get(context.Background(), models.CredentialUserData)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialPostgresRepositoryPutAndDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialPostgresRepository(db, "device-1")

	mock.ExpectExec("INSERT INTO session_credentials").
		WithArgs("device-1", "refreshToken", "refresh").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session_credentials WHERE namespace = $1 AND key = $2")).
		WithArgs("device-1", "refreshToken").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Put(context.Background(), models.CredentialRefreshToken, "refresh"))
	require.NoError(t, repo.Delete(context.Background(), models.CredentialRefreshToken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialPostgresRepositoryEnsureSchema(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialPostgresRepository(db, "device-1")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS session_credentials").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       "redis.invalid:6379",
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
}

func TestCredentialRedisRepositoryPropagatesErrors(t *testing.T) {
	client := unreachableRedis()
	defer client.Close()
	repo := NewCredentialRedisRepository(client, "device-1")

	_, found, err := repo.Get(context.Background(), models.CredentialAuthToken)
	require.Error(t, err)
	assert.False(t, found)
	assert.Error(t, repo.Put(context.Background(), models.CredentialAuthToken, "token"))
	assert.Error(t, repo.Delete(context.Background(), models.CredentialAuthToken))
}

// nilReplyHook answers every command with redis.Nil without touching the network.
type nilReplyHook struct{}

func (nilReplyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (nilReplyHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		cmd.SetErr(redis.Nil)
		return redis.Nil
	}
}

func (nilReplyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestCredentialRedisRepositoryTreatsNilAsMissing(t *testing.T) {
	client := unreachableRedis()
	defer client.Close()
	client.AddHook(nilReplyHook{})
	repo := NewCredentialRedisRepository(client, "device-1")

	value, found, err := repo.Get(context.Background(), models.CredentialAuthToken)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string

	err := repo.Get(context.Background(), "admin-data:1", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "admin-data:1", map[string]string{"a": "b"}, 0))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "admin-data:*"))
}
