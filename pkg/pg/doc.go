// Package pg wires PostgreSQL through pgx: a retried pool connection, a
// health probe, goose migrations from an embedded filesystem, and helpers
// shared by the stores (DBTX, WithTx, error classifiers).
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, migrations.FS, log); err != nil {
//	    return err
//	}
package pg
