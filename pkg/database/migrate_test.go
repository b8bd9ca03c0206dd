package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-estudiante-api/pkg/config"
)

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	source := fstest.MapFS{
		"0001_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT)")},
		"0002_extra.up.sql":   {Data: []byte("CREATE TABLE b (id INT)")},
		"0002_extra.down.sql": {Data: []byte("DROP TABLE b")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_init"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).WithArgs("0002_extra").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ran, err := Migrate(context.Background(), sqlxDB, source)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_extra"}, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDSNPrefersURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db/portal", DSN(config.DatabaseConfig{URL: "postgres://u:p@db/portal", Host: "ignored"}))
	assert.Contains(t, DSN(config.DatabaseConfig{Host: "db", Port: 5432, Name: "portal", SSLMode: "disable"}), "host=db port=5432")
}
