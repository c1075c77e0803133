/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/cache"
	"go.opentelemetry.io/otel"

	_ "github.com/lib/pq"
)

var tracer = otel.Tracer("payouts.database")

// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

// connErr holds the failure of the first connection attempt so later
// callers see it instead of a nil instance.
var connErr error

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Datasource is the postgres implementation of IDataSource. A Datasource
// obtained inside RunInTx routes every query through that transaction.
type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
	tx    *sql.Tx
}

func NewDataSource(configuration *config.Configuration, c cache.Cache) (IDataSource, error) {
	con, err := GetDBConnection(configuration, c)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration, c cache.Cache) (*Datasource, error) {
	once.Do(func() {
		con, err := ConnectDB(configuration.DataSource)
		if err != nil {
			connErr = err
			return
		}
		instance = &Datasource{Conn: con, Cache: c}
	})
	if connErr != nil {
		return nil, connErr
	}
	if instance == nil {
		return nil, errors.New("database connection is not initialized")
	}
	return instance, nil
}

// ConnectDB opens a pooled postgres connection. The schema is owned by the
// migrate command, nothing is created here.
func ConnectDB(cfg config.DataSourceConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Dns)
	if err != nil {
		return nil, err
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 10
	}
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)

	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}

	log.Println("Database connection established ✅")
	return db, nil
}

func (d Datasource) db() querier {
	if d.tx != nil {
		return d.tx
	}
	return d.Conn
}

// Ping reports whether the database answers.
func (d Datasource) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
