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
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/payouts/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDBConnection_Failure(t *testing.T) {
	// Reset the instance and once for testing purposes
	instance = nil
	connErr = nil
	once = sync.Once{}
	t.Cleanup(func() {
		instance = nil
		connErr = nil
		once = sync.Once{}
	})

	mockConfig := &config.Configuration{
		DataSource: config.DataSourceConfig{
			Dns: "postgres://nobody@127.0.0.1:1/payouts?sslmode=disable&connect_timeout=1",
		},
	}

	_, err := GetDBConnection(mockConfig, nil)
	assert.Error(t, err)

	// Later callers get the original failure, not a nil datasource.
	ds, err := GetDBConnection(mockConfig, nil)
	assert.Error(t, err)
	assert.Nil(t, ds)

	_, err = NewDataSource(mockConfig, nil)
	assert.Error(t, err)
}

func TestConnectDB_Failure(t *testing.T) {
	db, err := ConnectDB(config.DataSourceConfig{Dns: "invalid-dns"})
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestDatasource_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectPing()
	assert.NoError(t, ds.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, ds.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatasource_QueriesJoinTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	outside := Datasource{Conn: db}
	inside := Datasource{Conn: db, tx: tx}
	assert.Equal(t, db, outside.db())
	assert.Equal(t, tx, inside.db())
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, "tra_1", nullString("tra_1").String)
	assert.True(t, nullString("tra_1").Valid)
}
