package app

import (
	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/communications/infrastructure/persistence"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	"github.com/redis/go-redis/v9"
)

// newHistoryRepository creates the history log for the connection's driver.
func newHistoryRepository(conn database.Connection) (domain.HistoryRepository, error) {
	return persistence.NewHistoryRepository(conn)
}

// newLiveStore prefers Redis and falls back to the database table, so a
// single-operator install keeps its schedule across restarts without Redis.
func newLiveStore(conn database.Connection, client *redis.Client) domain.LiveStore {
	if client != nil {
		return persistence.NewRedisLiveStore(client, persistence.DefaultLiveKey)
	}
	return persistence.NewSQLLiveStore(conn)
}
