// Package migrate creates and resets the index schema.
package migrate

import (
	"dicom-object-store/logging"

	"github.com/go-pg/migrations"
	"github.com/go-pg/pg"
	"github.com/sirupsen/logrus"
)

func logger() logrus.FieldLogger {
	return logging.Logger.WithField("module", "migrate")
}

func exec(db migrations.DB, queries []string) error {
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Migrate runs go-pg migrations. args are passed to migrations.Run, e.g.
// "up", "down" or "version".
func Migrate(db *pg.DB, args []string) error {
	return db.RunInTransaction(func(tx *pg.Tx) error {
		if _, _, err := migrations.Run(tx, "init"); err != nil {
			return err
		}
		oldVersion, newVersion, err := migrations.Run(tx, args...)
		if err != nil {
			return err
		}
		if newVersion != oldVersion {
			logger().Infof("migrated from version %d to %d", oldVersion, newVersion)
		} else {
			logger().Infof("version is %d", oldVersion)
		}
		return nil
	})
}

// Reset reverts all migrations to version 0 and then applies all
// migrations to latest.
func Reset(db *pg.DB) error {
	if _, _, err := migrations.Run(db, "init"); err != nil {
		return err
	}
	version, err := migrations.Version(db)
	if err != nil {
		return err
	}

	err = db.RunInTransaction(func(tx *pg.Tx) error {
		for version != 0 {
			oldVersion, newVersion, err := migrations.Run(tx, "down")
			if err != nil {
				return err
			}
			logger().Infof("migrated from version %d to %d", oldVersion, newVersion)
			version = newVersion
		}
		return nil
	})
	if err != nil {
		return err
	}

	return Migrate(db, []string{"up"})
}
