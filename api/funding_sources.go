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
package api

import (
	"net/http"

	"github.com/blnkfinance/payouts"
	model2 "github.com/blnkfinance/payouts/api/model"
	"github.com/blnkfinance/payouts/model"
	"github.com/gin-gonic/gin"
)

// AddFundingSource registers a bank account with the provider. The account
// details are forwarded and never stored.
//
// Responses:
// - 400 Bad Request: If the account details are invalid.
// - 502 Bad Gateway: If the provider rejected the account.
// - 201 Created: With the unverified funding source.
func (a Api) AddFundingSource(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var req model2.CreateFundingSource
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateFundingSource(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	fs := model.FundingSource{OwnerID: req.OwnerID, Name: req.Name}
	account := payouts.BankAccount{
		RoutingNumber: req.RoutingNumber,
		AccountNumber: req.AccountNumber,
		Type:          req.BankAccountType,
	}
	resp, err := a.payouts.AddFundingSource(c.Request.Context(), rc, fs, account)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// InitiateMicroDeposits asks the provider to send the two verification deposits.
func (a Api) InitiateMicroDeposits(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.InitiateMicroDeposits(c.Request.Context(), rc, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyMicroDeposits confirms the deposit amounts and marks the source verified.
func (a Api) VerifyMicroDeposits(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var req model2.VerifyMicroDeposits
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateVerifyMicroDeposits(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.payouts.VerifyMicroDeposits(c.Request.Context(), rc, id, req.Amount1, req.Amount2)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) SetDefaultFundingSource(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.SetDefaultFundingSource(c.Request.Context(), rc, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
