package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestOpenSQLiteMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(quietLogger(), Config{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Ping(context.Background(), db))
	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(quietLogger(), Config{Driver: "oracle"})
	assert.Error(t, err)
}
