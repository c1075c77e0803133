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

	"github.com/blnkfinance/payouts"
	"github.com/spf13/cobra"
)

// transferCommands groups operator tools for transfers stuck at the provider.
func transferCommands(p *payoutsInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "inspect and reconcile transfers",
	}
	cmd.AddCommand(refreshTransferCommand(p))
	cmd.AddCommand(sweepCommand(p))
	return cmd
}

func refreshTransferCommand(p *payoutsInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [transfer_id]",
		Short: "fetch a transfer's status from the provider and apply it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			defer p.close()
			transfer, err := p.payouts.RefreshTransfer(context.Background(), args[0])
			if err != nil {
				log.Fatalf("Error refreshing transfer: %v", err)
			}
			fmt.Printf("%s %s\n", transfer.TransferID, transfer.Status)
		},
	}
}

func sweepCommand(p *payoutsInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "run one pass of the stuck transfer sweeper",
		Run: func(cmd *cobra.Command, args []string) {
			defer p.close()
			sweeper := payouts.NewTransferSweeper(p.payouts, p.redis.Client(), p.cnf.Sweeper)
			n, err := sweeper.Sweep(context.Background())
			if err != nil {
				log.Fatalf("Error sweeping transfers: %v", err)
			}
			fmt.Printf("Reconciled %d transfers\n", n)
		},
	}
}
