package models

import (
	"database/sql"
	"os"
	"strings"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

func InitDB() {
	log := logger.L()
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to init gorm: %v", err)
	}

	log.Info("database connected (native SQL + GORM)")

	bootstrapSchema()
}

// bootstrapSchema executes doc/sql/TrendToVideo.sql so a fresh database comes
// up with all tables. Missing file is not fatal (migrations may be managed
// externally in production).
func bootstrapSchema() {
	log := logger.L()
	b, err := os.ReadFile("doc/sql/TrendToVideo.sql")
	if err != nil {
		log.Warnf("failed to read schema file (skipping bootstrap): %v", err)
		return
	}
	sqls := strings.Split(string(b), ";")
	for _, s := range sqls {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := DB.Exec(s); err != nil {
			log.Warnf("schema statement failed: %v ; sql: %s", err, s)
		}
	}
}
