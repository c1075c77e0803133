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

package middleware

import (
	"net/http"
	"strings"

	"github.com/blnkfinance/payouts/model"
	"github.com/gin-gonic/gin"
)

const (
	KeyHeader    = "X-Payouts-Key"
	TenantHeader = "X-Tenant-Id"
	UserHeader   = "X-User-Id"
	RoleHeader   = "X-User-Role"

	requestContextKey = "requestContext"
)

// pathToResource maps URL paths to their corresponding resource types.
var pathToResource = map[string]Resource{
	"transactions":    ResourceTransactions,
	"transfers":       ResourceTransfers,
	"funding-sources": ResourceFundingSources,
}

// getResourceFromPath determines the resource type from the URL path.
//
// Parameters:
// - path: The URL path to analyze.
//
// Returns:
// - Resource: The determined resource type, or empty string if not found.
func getResourceFromPath(path string) Resource {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return pathToResource[parts[0]]
}

// Authenticate builds the caller's request context from the identity headers set
// by the gateway and checks the caller's role may use the route.
//
// Responses:
// - 401 Unauthorized: When the tenant, user or role header is missing or unknown.
// - 403 Forbidden: When the role lacks permission for the resource.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := model.RequestContext{
			TenantID: strings.TrimSpace(c.GetHeader(TenantHeader)),
			UserID:   strings.TrimSpace(c.GetHeader(UserHeader)),
			Role:     model.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(RoleHeader)))),
		}
		if rc.TenantID == "" || rc.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required. Missing tenant or user"})
			return
		}
		scopes := ScopesForRole(rc.Role)
		if len(scopes) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown role " + string(rc.Role)})
			return
		}

		resource := getResourceFromPath(c.Request.URL.Path)
		if resource == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unknown resource type"})
			return
		}
		if !HasPermission(scopes, resource, c.Request.Method) {
			action := methodToAction[c.Request.Method]
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions for " + string(resource) + ":" + string(action)})
			return
		}

		c.Set(requestContextKey, rc)
		c.Next()
	}
}

// GetRequestContext returns the context stored by Authenticate.
func GetRequestContext(c *gin.Context) (model.RequestContext, bool) {
	value, ok := c.Get(requestContextKey)
	if !ok {
		return model.RequestContext{}, false
	}
	rc, ok := value.(model.RequestContext)
	return rc, ok
}
