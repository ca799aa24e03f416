package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5433/alerts?sslmode=require", DSN(ClientConfig{
		Host: "db", Port: 5433, Database: "alerts", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://u:@db:5432/alerts?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "alerts", User: "u",
	}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	v := nullable("x")
	if assert.NotNil(t, v) {
		assert.Equal(t, "x", *v)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	assert.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS tracked_markets")
}
