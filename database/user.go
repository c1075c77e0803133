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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/sirupsen/logrus"
)

const userCacheTTL = 5 * time.Minute

func userCacheKey(tenantID, userID string) string {
	return fmt.Sprintf("user:%s:%s", tenantID, userID)
}

// GetUser reads a tenant user, serving repeat lookups from the cache when one is configured.
func (d Datasource) GetUser(ctx context.Context, tenantID, userID string) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "Fetching user")
	defer span.End()

	key := userCacheKey(tenantID, userID)
	if d.Cache != nil {
		var cached model.User
		if err := d.Cache.Get(ctx, key, &cached); err == nil && cached.UserID != "" {
			return &cached, nil
		}
	}

	u := &model.User{}
	var customerURI sql.NullString
	err := d.db().QueryRowContext(ctx, `
		SELECT user_id, tenant_id, email, first_name, last_name, provider_customer_uri
		FROM payouts.users
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&u.UserID, &u.TenantID, &u.Email, &u.FirstName, &u.LastName, &customerURI)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User '%s' not found", userID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve user", err)
	}
	u.ProviderCustomerURI = customerURI.String

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, key, u, userCacheTTL); err != nil {
			logrus.WithError(err).Warn("failed to cache user")
		}
	}
	return u, nil
}
