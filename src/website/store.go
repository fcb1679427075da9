package website

import (
	"context"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/db"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/moderation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store/pgstore"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store/sqlitestore"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
)

// OpenStore opens the store selected by config.Config.Store. Postgres schemas are
// managed by the migrate command; SQLite creates its schema on open.
func OpenStore(ctx context.Context) (store.Store, error) {
	switch config.Config.Store {
	case config.StorePostgres:
		return openPostgres()
	case config.StoreSQLite, "":
		s, err := sqlitestore.Open(ctx, config.Config.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, oops.Kinded(oops.KindValidation, nil, "unknown store driver %q", config.Config.Store)
	}
}

// OpenService opens the configured store and wraps it in a moderation service.
// Callers close the returned store.
func OpenService(ctx context.Context) (*moderation.Service, store.Store, error) {
	s, err := OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return moderation.NewService(s, config.Config.Credibility), s, nil
}

func openPostgres() (s store.Store, err error) {
	// The db constructors panic when the database is unreachable.
	defer utils.RecoverPanicAsError(&err)
	return pgstore.New(db.NewConnPoolWithConfig(config.Config.Postgres)), nil
}
