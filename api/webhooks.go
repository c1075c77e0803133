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

	"github.com/blnkfinance/payouts/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReceiveProviderWebhook accepts a signed provider event and queues it for
// reconciliation. The provider is acknowledged as soon as the event is queued.
//
// Responses:
// - 400 Bad Request: If the payload is not a provider event.
// - 500 Internal Server Error: If the event could not be queued, so the provider redelivers.
// - 202 Accepted: Once the event is queued.
func (a Api) ReceiveProviderWebhook(c *gin.Context) {
	var event model.ProviderEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}
	if event.ID == "" || event.Topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and topic are required"})
		return
	}

	var err error
	if a.events != nil {
		err = a.events.EnqueueProviderEvent(c.Request.Context(), event)
	} else {
		err = a.payouts.ReconcileFromWebhook(c.Request.Context(), event)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"event_id": event.ID, "topic": event.Topic}).Error("could not accept provider event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event not accepted"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "id": event.ID})
}
