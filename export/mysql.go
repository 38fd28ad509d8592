package export

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

var MySQLDialect = Dialect{
	Name: "mysql",
	CreateTable: `CREATE TABLE IF NOT EXISTS samples (
		ID           BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		Identifier   VARCHAR(64) NOT NULL,
		Source       VARCHAR(32) NOT NULL,
		FreqCenter   BIGINT UNSIGNED,
		FreqLow      BIGINT UNSIGNED,
		FreqHigh     BIGINT UNSIGNED,
		DBHigh       DOUBLE,
		DBLow        DOUBLE,
		DBAvg        DOUBLE,
		SampleCount  BIGINT UNSIGNED,
		StartMilli   BIGINT,
		EndMilli     BIGINT,
		INDEX freq_time (FreqCenter, StartMilli)
	);`,
}

type MySQLOptions struct {
	Server       string
	User         string
	PasswordFile string
	DBName       string
}

// DSN builds the driver connection string, reading the password from its
// file.
func (o MySQLOptions) DSN() (string, error) {
	pass, err := os.ReadFile(o.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("unable to read MySQL password file %q: %w", o.PasswordFile, err)
	}
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = strings.TrimSpace(string(pass))
	cfg.Net = "tcp"
	cfg.Addr = o.Server
	cfg.DBName = o.DBName
	return cfg.FormatDSN(), nil
}

// OpenMySQL opens a pooled connection to the configured server.
func OpenMySQL(o MySQLOptions) (*sql.DB, error) {
	dsn, err := o.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL DB %q: %w", o.Server, err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return db, nil
}
