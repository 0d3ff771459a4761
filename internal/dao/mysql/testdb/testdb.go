// Package testdb 为各层测试提供独立的内存 SQLite 库
package testdb

import (
	"testing"

	"campus_chat_server/internal/config"
	"campus_chat_server/internal/dao/mysql"
	"campus_chat_server/internal/dao/mysql/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// New 每次调用得到一个全新的已迁移数据库，测试结束自动关闭
func New(t testing.TB) (*gorm.DB, *repository.Repositories) {
	t.Helper()

	db, err := mysql.Open(&config.MysqlConfig{
		Driver:   "sqlite",
		FilePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err = mysql.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, repository.NewRepositories(db)
}
