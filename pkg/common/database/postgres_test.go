package database

import (
	"testing"

	"github.com/raredx/triage/pkg/common/config"
	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		PostgresHost:     "db",
		PostgresPort:     "5433",
		PostgresUser:     "audit",
		PostgresPassword: "secret",
		PostgresDB:       "triage",
		PostgresSSLMode:  "require",
	}
	assert.Equal(t, "host=db user=audit password=secret dbname=triage port=5433 sslmode=require", DSN(cfg))
}
