// Package database 负责建立 gorm、Redis 与 MongoDB 连接。
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"iep-rag-go/internal/config"
	"iep-rag-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 根据配置的驱动打开 gorm 连接。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		return OpenMySQL(cfg.MySQL.DSN)
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			_ = os.MkdirAll(dir, os.ModePerm)
		}
		return OpenSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}
}

// OpenMySQL 初始化 MySQL 数据库连接并配置连接池。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	log.Info("MySQL database connected successfully")
	return db, nil
}

// OpenSQLite 打开 SQLite 数据库，适用于单机部署与测试。
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite 只允许单写者
	sqlDB.SetMaxOpenConns(1)

	log.Infof("SQLite database opened: %s", path)
	return db, nil
}
