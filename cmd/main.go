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
	"os"

	"github.com/blnkfinance/payouts"
	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/internal/cache"
	"github.com/blnkfinance/payouts/internal/notification"
	redis_db "github.com/blnkfinance/payouts/internal/redis-db"
	"github.com/blnkfinance/payouts/provider"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Payouts represents the CLI application, encapsulating the root Cobra command.
type Payouts struct {
	cmd *cobra.Command // Root command for the CLI application
}

// payoutsInstance holds the service and the collaborators commands share.
type payoutsInstance struct {
	payouts *payouts.Payouts
	queue   *payouts.Queue
	redis   *redis_db.Redis
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec) // Log the recovered panic
		os.Exit(1)        // Exit the program with an error status
	}
}

// preRun loads the configuration and wires the service before running any command.
func preRun(app *payoutsInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		// migrate and config only need the configuration.
		if cmd.Name() == "config" || (cmd.Parent() != nil && cmd.Parent().Name() == "migrate") {
			return nil
		}

		if err := setupPayouts(app, cnf); err != nil {
			notification.NotifyError(err) // Notify via the internal notification system
			log.Fatal(err)                // Log the fatal error
		}
		return nil
	}
}

// setupPayouts connects redis, the database and the provider, and builds the service.
func setupPayouts(app *payoutsInstance, cfg *config.Configuration) error {
	rdb, err := redis_db.NewFromConfig(cfg.Redis)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %v", err)
	}
	c := cache.NewCache(rdb.Client())

	db, err := database.NewDataSource(cfg, c)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	client, err := provider.New(cfg.Provider)
	if err != nil {
		return fmt.Errorf("error creating provider client: %v", err)
	}

	queue, err := payouts.NewQueue(cfg)
	if err != nil {
		return fmt.Errorf("error creating queue: %v", err)
	}

	newPayouts, err := payouts.NewPayouts(db, payouts.Options{
		Provider:            client,
		Notifier:            queue,
		Webhooks:            queue,
		Cache:               c,
		Currency:            cfg.Provider.Currency,
		MasterFundingSource: cfg.Provider.MasterFundingSource,
		ProviderTimeout:     cfg.Provider.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("error creating payouts: %v", err)
	}

	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return queue.PublishWebhook(context.Background(), payouts.NewWebhook{Event: event, Payload: payload})
	})

	app.payouts = newPayouts
	app.queue = queue
	app.redis = rdb
	return nil
}

// NewCLI creates the command-line interface with the server, workers, migrate,
// config and transfers subcommands.
func NewCLI() *Payouts {
	var configFile string
	p := &payoutsInstance{}

	var rootCmd = &cobra.Command{
		Use:   "payouts",
		Short: "Contractor payouts settlement",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./payouts.json", "Configuration file for the payouts server")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(configCommands())
	rootCmd.AddCommand(transferCommands(p))

	return &Payouts{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Payouts) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

// close releases the queue client and the redis connection.
func (p *payoutsInstance) close() {
	if p.queue != nil {
		if err := p.queue.Close(); err != nil {
			logrus.WithError(err).Warn("error closing queue client")
		}
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			logrus.WithError(err).Warn("error closing redis client")
		}
	}
}
