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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/payouts"
	"github.com/blnkfinance/payouts/config"
	redis_db "github.com/blnkfinance/payouts/internal/redis-db"
	"github.com/blnkfinance/payouts/mailer"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// initializeQueues weights provider events above outgoing messages so status
// changes are applied before anyone is told about them.
func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.ProviderEventQueue: 5,
		cfg.Queue.NotificationQueue:  3,
		cfg.Queue.WebhookQueue:       2,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		redisOption,
		asynq.Config{
			Concurrency: conf.Queue.NumberOfWorkers,
			Queues:      queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger := logrus.WithError(err).WithFields(logrus.Fields{"task": task.Type(), "retry": retried})
				if retried >= maxRetry {
					logger.Error("task exhausted its retries")
					return
				}
				logger.Warn("task failed, will retry")
			}),
		},
	), nil
}

func initializeTaskHandlers(p *payoutsInstance, mux *asynq.ServeMux) {
	cfg := p.cnf
	mux.HandleFunc(cfg.Queue.ProviderEventQueue, p.payouts.ProcessProviderEvent)
	mux.Handle(cfg.Queue.NotificationQueue, payouts.ProcessNotification(mailer.New(cfg.Mailer)))
	mux.HandleFunc(cfg.Queue.WebhookQueue, payouts.ProcessWebhook)
}

// workerCommands defines the "workers" command. The workers reconcile provider
// events, deliver notifications and webhooks, and run the transfer sweeper.
func workerCommands(p *payoutsInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start payouts workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			defer p.close()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(p, mux)

			if conf.Sweeper.Enabled {
				sweeper := payouts.NewTransferSweeper(p.payouts, p.redis.Client(), conf.Sweeper)
				sweeper.Start(ctx)
				defer sweeper.Stop()
			}

			redisOption, _ := redis_db.AsynqOptions(conf.Redis)
			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOption,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
