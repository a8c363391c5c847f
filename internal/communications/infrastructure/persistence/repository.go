package persistence

import (
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
)

// NewHistoryRepository returns the history repository for the connection's driver.
func NewHistoryRepository(conn database.Connection) (domain.HistoryRepository, error) {
	switch conn.Driver() {
	case database.DriverSQLite:
		return NewSQLiteHistoryRepository(conn), nil
	case database.DriverPostgres:
		return NewPostgresHistoryRepository(conn), nil
	default:
		return nil, fmt.Errorf("no history repository for driver %s", conn.Driver())
	}
}
