// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/archiver/internal/config"
)

const graphScope = "https://graph.microsoft.com/.default"

// tokenURLFormat is the Entra ID v2 token endpoint for a tenant.
var tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// GraphClients builds one client-credentials HTTP client per m365 tenant,
// keyed by alias. Tokens are fetched lazily and refreshed by the transport.
func GraphClients(ctx context.Context, tenants []config.TenantConfig) map[string]*http.Client {
	clients := make(map[string]*http.Client, len(tenants))
	for _, tenant := range tenants {
		if tenant.Provider != "m365" {
			continue
		}
		creds := &clientcredentials.Config{
			ClientID:     tenant.ClientID,
			ClientSecret: tenant.ClientSecret,
			TokenURL:     fmt.Sprintf(tokenURLFormat, tenant.TenantID),
			Scopes:       []string{graphScope},
		}
		clients[tenant.Alias] = creds.Client(ctx)
	}
	return clients
}
