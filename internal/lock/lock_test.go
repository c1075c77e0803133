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

package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "payouts:sweeper", "worker-1")

	mock.ExpectSetNX("payouts:sweeper", "worker-1", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "payouts:sweeper", "worker-1")

	mock.ExpectSetNX("payouts:sweeper", "worker-1", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_TryLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "payouts:sweeper", "worker-1")

	mock.ExpectSetNX("payouts:sweeper", "worker-1", time.Minute).SetVal(false)
	acquired, err := locker.TryLock(context.Background(), time.Minute)
	assert.NoError(t, err)
	assert.False(t, acquired)

	mock.ExpectSetNX("payouts:sweeper", "worker-1", time.Minute).SetErr(errors.New("connection refused"))
	acquired, err = locker.TryLock(context.Background(), time.Minute)
	assert.Error(t, err)
	assert.False(t, acquired)

	mock.ExpectSetNX("payouts:sweeper", "worker-1", time.Minute).SetVal(true)
	acquired, err = locker.TryLock(context.Background(), time.Minute)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "payouts:sweeper", "worker-1")

	mock.ExpectEval(unlockScript, []string{"payouts:sweeper"}, "worker-1").SetVal(int64(1))
	assert.NoError(t, locker.Unlock(context.Background()))

	mock.ExpectEval(unlockScript, []string{"payouts:sweeper"}, "worker-1").SetVal(int64(0))
	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key payouts:sweeper")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ExtendLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "payouts:sweeper", "worker-1")

	mock.ExpectEval(extendScript, []string{"payouts:sweeper"}, "worker-1", "5000").SetVal(int64(1))
	assert.NoError(t, locker.ExtendLock(context.Background(), 5*time.Second))

	mock.ExpectEval(extendScript, []string{"payouts:sweeper"}, "worker-1", "5000").SetVal(int64(0))
	err := locker.ExtendLock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock extension failed for key payouts:sweeper, either lock expired or you're not the holder")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_WaitLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	holder := NewLocker(client, "payouts:sweeper", "worker-1")
	waiter := NewLocker(client, "payouts:sweeper", "worker-2")

	require.NoError(t, holder.Lock(context.Background(), time.Minute))

	err = waiter.WaitLock(context.Background(), time.Minute, 300*time.Millisecond)
	assert.EqualError(t, err, "failed to acquire lock for key payouts:sweeper within the wait timeout")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Unlock(context.Background())
	}()

	err = waiter.WaitLock(context.Background(), time.Minute, 2*time.Second)
	assert.NoError(t, err)
}
