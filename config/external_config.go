// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

// externalConfig carries the endpoints and credentials for every
// third-party registration/cataloguing/access-management service the
// publish orchestrator (component J) talks to. One field group per
// service, named after the spec.md §6 environment variable that feeds it.
type externalConfig struct {
	// DataCite: DOI minting/update client (component I)
	DataciteAPI    string `yaml:"datacite_api"`
	DatacitePrefix string `yaml:"datacite_prefix"`
	DataciteUser   string `yaml:"datacite_user"`
	DataciteKey    string `yaml:"datacite_key"`
	DataciteURL    string `yaml:"datacite_url"`

	// PID: fallback persistent-identifier service
	PIDURL    string `yaml:"pid_url"`
	PIDApiKey string `yaml:"pid_apikey"`

	// Metax: metadata catalog
	MetaxURL         string `yaml:"metax_url"`
	MetaxUser        string `yaml:"metax_user"`
	MetaxPass        string `yaml:"metax_pass"`
	MetaxProviderOrg string `yaml:"metax_provider_org"`
	MetaxCatalogPid  string `yaml:"metax_catalog_pid"`

	// REMS: access-management/resource-entitlement service
	RemsURL        string `yaml:"rems_url"`
	RemsUserId     string `yaml:"rems_user_id"`
	RemsKey        string `yaml:"rems_key"`
	RemsOrgId      string `yaml:"rems_org_id"`
	RemsWorkflowId int    `yaml:"rems_workflow_id"`

	// Admin: ingestion-admin API used to ingest files, list a user's files and assign accessions
	AdminURL string `yaml:"admin_url"`
}
