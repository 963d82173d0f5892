package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "palantiri", Password: "s3cr#t", Database: "palantiri"}
	assert.Equal(t, "postgres://palantiri:s3cr%23t@db:5432/palantiri?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://palantiri:s3cr%23t@db:5432/palantiri?sslmode=require", cfg.DSN())
}
