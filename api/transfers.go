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

	model2 "github.com/blnkfinance/payouts/api/model"
	"github.com/gin-gonic/gin"
)

// CreateTransfer batches the given transactions into one transfer and submits
// it to the provider.
//
// Responses:
// - 400 Bad Request: If the batch is empty or mixes recipients.
// - 406 Not Acceptable: If a verified funding source is missing.
// - 409 Conflict: If a transaction already belongs to a pending transfer.
// - 201 Created: With the submitted transfer.
func (a Api) CreateTransfer(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	var req model2.CreateTransfer
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.payouts.PrepareAndExecute(c.Request.Context(), rc, req.TransactionIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetTransfer(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.GetTransfer(c.Request.Context(), rc, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
