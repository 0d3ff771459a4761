// Package mysql 负责建立关系库连接、自动迁移表结构、初始化 Repository 层
// 生产环境使用 MySQL，单机部署和测试可切换到 SQLite
package mysql

import (
	"fmt"
	"strings"

	"campus_chat_server/internal/config"
	"campus_chat_server/internal/dao/mysql/repository"
	"campus_chat_server/internal/model"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置的 driver 打开数据库
func Open(cfg *config.MysqlConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true, // 唯一索引冲突统一成 gorm.ErrDuplicatedKey
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.FilePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.FilePath, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite 只允许一个写者，单连接让事务在连接池上排队
		sqlDB.SetMaxOpenConns(1)
	case "", "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DatabaseName,
		)
		db, err = gorm.Open(mysqldriver.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.DatabaseName, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	return db, nil
}

// Migrate 自动迁移聊天相关的表，不会删除已有字段或数据
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ChatRoom{},
		&model.ChatRoomMember{},
		&model.ChatMessage{},
	)
}

// Init 连接数据库、迁移表结构并返回 Repository 聚合
// 任何一步失败直接退出进程
func Init() (*gorm.DB, *repository.Repositories) {
	conf := config.GetConfig()

	db, err := Open(&conf.MysqlConfig)
	if err != nil {
		zap.L().Fatal("connect database failed", zap.Error(err))
	}
	if err = Migrate(db); err != nil {
		zap.L().Fatal("auto migrate failed", zap.Error(err))
	}
	zap.L().Info("database ready", zap.String("driver", conf.MysqlConfig.Driver))
	return db, repository.NewRepositories(db)
}
