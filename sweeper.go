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

package payouts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/apierror"
	redlock "github.com/blnkfinance/payouts/internal/lock"
	"github.com/blnkfinance/payouts/internal/notification"
	"github.com/blnkfinance/payouts/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const sweeperLockKey = "payouts:transfer_sweeper"

// TransferSweeper re-polls the provider for transfers stuck in processing.
// Only one sweeper in the cluster runs a pass at a time.
type TransferSweeper struct {
	payouts    *Payouts
	locker     *redlock.Locker
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

// NewTransferSweeper builds a sweeper. A nil client disables cluster-wide locking.
func NewTransferSweeper(p *Payouts, client redis.UniversalClient, cfg config.SweeperConfig) *TransferSweeper {
	s := &TransferSweeper{
		payouts:    p,
		interval:   time.Duration(cfg.IntervalSeconds) * time.Second,
		stuckAfter: time.Duration(cfg.StuckAfterSeconds) * time.Second,
		batchSize:  cfg.BatchSize,
		stopCh:     make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = 5 * time.Minute
	}
	if s.stuckAfter <= 0 {
		s.stuckAfter = time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if client != nil {
		s.locker = redlock.NewLocker(client, sweeperLockKey, uuid.New().String())
	}
	return s
}

func (s *TransferSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	logrus.Info("Transfer sweeper started")
}

func (s *TransferSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Info("Transfer sweeper stopped")
}

func (s *TransferSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *TransferSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Transfer sweeper context cancelled")
			return
		case <-s.stopCh:
			logrus.Info("Transfer sweeper stop signal received")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logrus.Errorf("transfer sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one pass and returns the number of stuck transfers it looked at.
func (s *TransferSweeper) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		acquired, err := s.locker.TryLock(ctx, s.interval)
		if err != nil {
			return 0, err
		}
		if !acquired {
			logrus.Debug("transfer sweep skipped, another sweeper holds the lock")
			return 0, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logrus.Warnf("failed to release sweeper lock: %v", err)
			}
		}()
	}

	stuck, err := s.payouts.datasource.GetStuckTransfers(ctx, time.Now().UTC().Add(-s.stuckAfter), s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	logrus.Infof("Processing %d stuck transfers (threshold=%v)", len(stuck), s.stuckAfter)
	for _, transfer := range stuck {
		if err := s.recover(ctx, transfer); err != nil {
			logrus.Errorf("failed to recover stuck transfer %s: %v", transfer.TransferID, err)
		}
	}
	return len(stuck), nil
}

func (s *TransferSweeper) recover(ctx context.Context, transfer *model.Transfer) error {
	if !transfer.Submitted() {
		// Claimed but never accepted by the provider. Money may or may not have
		// moved, so this needs an operator.
		notification.NotifyError(fmt.Errorf("transfer %s has been processing since %s without a provider reference", transfer.TransferID, transfer.UpdatedAt.Format(time.RFC3339)))
		return nil
	}
	_, err := s.payouts.RefreshTransfer(ctx, transfer.TransferID)
	return err
}

// RefreshTransfer fetches the provider status of a submitted transfer and reconciles it.
func (p *Payouts) RefreshTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	transfer, err := p.datasource.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if !transfer.Submitted() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("transfer %s has not been accepted by the provider", transferID), nil)
	}

	pctx, cancel := p.providerContext(ctx)
	result, err := p.provider.GetTransfer(pctx, transfer.ExternalID)
	cancel()
	if err != nil {
		return nil, providerError("could not fetch the transfer status", err)
	}
	return p.ReconcileTransfer(ctx, transferID, result.Status)
}
