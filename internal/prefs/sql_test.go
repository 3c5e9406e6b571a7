package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, dialect string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, Dialects[dialect]), mock
}

func TestSQLStore_Get(t *testing.T) {
	tests := []struct {
		name          string
		dialect       string
		setupMock     func(mock sqlmock.Sqlmock)
		want          string
		expectError   bool
		errorContains string
	}{
		{
			name:    "postgres_found",
			dialect: "postgres",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM wbctl_preferences WHERE name = $1`)).
					WithArgs(Manifests).
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`[{"version":"1.0"}]`))
			},
			want: `[{"version":"1.0"}]`,
		},
		{
			name:    "mysql_found",
			dialect: "mysql",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM wbctl_preferences WHERE name = ?`)).
					WithArgs(Selected).
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("Wikidata"))
			},
			want: "Wikidata",
		},
		{
			name:    "unset",
			dialect: "postgres",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value").WillReturnError(sql.ErrNoRows)
			},
			want: "",
		},
		{
			name:    "query_failure",
			dialect: "postgres",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value").WillReturnError(fmt.Errorf("connection lost"))
			},
			expectError:   true,
			errorContains: "connection lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t, tt.dialect)
			tt.setupMock(mock)

			name := Manifests
			if tt.dialect == "mysql" {
				name = Selected
			}
			got, err := store.Get(context.Background(), name)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_Set(t *testing.T) {
	t.Run("postgres_upsert", func(t *testing.T) {
		store, mock := newMockStore(t, "postgres")
		mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (name) DO UPDATE`)).
			WithArgs(Selected, "Test").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Set(context.Background(), Selected, "Test"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql_upsert", func(t *testing.T) {
		store, mock := newMockStore(t, "mysql")
		mock.ExpectExec(regexp.QuoteMeta(`ON DUPLICATE KEY UPDATE`)).
			WithArgs(Selected, "Test").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Set(context.Background(), Selected, "Test"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_failure", func(t *testing.T) {
		store, mock := newMockStore(t, "postgres")
		mock.ExpectExec("INSERT INTO wbctl_preferences").WillReturnError(fmt.Errorf("read-only"))

		err := store.Set(context.Background(), Selected, "Test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "write preference")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, "postgres")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS wbctl_preferences").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSQL_UnknownDialect(t *testing.T) {
	_, err := OpenSQL(context.Background(), "sqlite", "file::memory:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}
