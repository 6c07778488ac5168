package db

import (
	"database/sql"
	"fmt"

	"Bt1QDJ/config"
	"Bt1QDJ/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("数据库连接成功")
	return nil
}

// CloseDB closes the raw connection pool.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

// InitDB initializes the database schema, creating tables if they don't
// exist. Saved playlists live in GORM-managed tables, see AutoMigrateModels.
func InitDB() error {
	if err := createGuildSettingsTable(); err != nil {
		return err
	}
	logger.Info("数据库初始化完成")
	return nil
}

func createGuildSettingsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id BIGINT UNSIGNED PRIMARY KEY,
		volume INT NULL,
		search_songs INT NULL,
		empty_cooldown INT NULL,
		nsfw TINYINT(1) NULL,
		default_filters TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create guild_settings table: %w", err)
	}
	return nil
}
