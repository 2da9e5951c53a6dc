package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSQL(t *testing.T) {
	in := StripSQLComments(`
-- header
CREATE TABLE a (id INT);

  -- indented comment
CREATE INDEX a_idx ON a (id);
`)
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX a_idx ON a (id)"}, SplitSQL(in))
}

func TestFindMigrations(t *testing.T) {
	dir, err := FindMigrations()
	assert.NoError(t, err)
	assert.Contains(t, dir, "migrations")
}
