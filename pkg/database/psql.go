package database

import (
	"fmt"
	"time"

	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewGormConnection open postgres (or sqlite when driver == "sqlite") with retry
func NewGormConnection(driver string, d Connection) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(d.ConnectStr)
	case "", "postgres":
		dialector = postgres.Open(d.ConnectStr)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	var db *gorm.DB
	var err error
	retry := d.RetryCount
	if retry <= 0 {
		retry = 1
	}
	for i := 0; i < retry; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err == nil {
			return db, nil
		}
		logger.Log.Warn(
			"Failed to connect to database, retrying...",
			zap.Int("attempt", i+1),
			zap.String("driver", driver),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, err
}
