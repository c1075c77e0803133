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

	"github.com/sirupsen/logrus"

	model2 "github.com/blnkfinance/payouts/api/model"

	"github.com/gin-gonic/gin"
)

// CreateTransaction records a unit of work owed to a contractor.
// It binds the incoming JSON request to a CreateTransaction object, validates it,
// and then records the transaction with status new.
//
// Parameters:
// - c: The Gin context containing the request and response.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the transaction.
// - 403 Forbidden: If the caller is not an admin.
// - 201 Created: If the transaction is successfully recorded.
func (a Api) CreateTransaction(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var newTransaction model2.CreateTransaction
	// Bind the incoming JSON request to the newTransaction model
	if err := c.ShouldBindJSON(&newTransaction); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	// Validate the transaction data
	if err := newTransaction.ValidateCreateTransaction(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.payouts.CreateTransaction(c.Request.Context(), rc, newTransaction.ToTransaction())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetTransaction retrieves a transaction by its ID.
//
// Responses:
// - 404 Not Found: If the transaction does not exist or is not visible to the caller.
// - 200 OK: If the transaction is successfully retrieved.
func (a Api) GetTransaction(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.GetTransaction(c.Request.Context(), rc, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListTransactions lists the tenant's transactions. Contractors only see their own.
//
// Query parameters: user_id, transfer_id, status, limit, offset.
//
// Responses:
// - 400 Bad Request: If a query parameter is invalid.
// - 200 OK: With the matching transactions.
func (a Api) ListTransactions(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var query model2.ListTransactions
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := query.ValidateListTransactions(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.payouts.ListTransactions(c.Request.Context(), rc, query.ToFilter())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelTransaction cancels a transaction that has not settled. A transaction
// already submitted to the provider is only cancelled once the provider confirms.
//
// Responses:
// - 409 Conflict: If the transaction can no longer be cancelled.
// - 502 Bad Gateway: If the provider refused or could not be reached.
// - 200 OK: With the cancelled transaction.
func (a Api) CancelTransaction(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.CancelTransaction(c.Request.Context(), rc, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RetryTransaction resets a failed transaction so it can be batched again.
//
// Responses:
// - 409 Conflict: If the transaction has not failed.
// - 200 OK: With the reset transaction.
func (a Api) RetryTransaction(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.RetryTransaction(c.Request.Context(), rc, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
