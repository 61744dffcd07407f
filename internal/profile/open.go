package profile

import (
	"context"
	"fmt"
)

// Open returns the store selected by driver: "sqlite" (default) or
// "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "data/cystoscribe.db"
		}
		return OpenSQLite(ctx, dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("profile: unknown storage driver %q", driver)
	}
}
