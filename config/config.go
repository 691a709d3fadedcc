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

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// a type with service configuration parameters
type serviceConfig struct {
	// descriptive name of this service instance; used to name on-disk
	// state such as the publish journal's database file
	Name string `yaml:"name,omitempty"`
	// port on which the service listens
	Port int `yaml:"port,omitempty"`
	// maximum number of allowed incoming connections
	// default: 100
	MaxConnections int `yaml:"max_connections,omitempty"`
	// polling interval for the publish orchestrator's recovery scan
	// (milliseconds); fed by POLLING_INTERVAL
	// default: 1 minute
	PollInterval int `yaml:"poll_interval,omitempty"`
	// name of an existing directory in which submeta stores persistent
	// data (the publish journal's bbolt file, the local object store)
	DataDirectory string `yaml:"data_dir,omitempty"`
	// flag indicating whether debug logging and other tools are enabled
	Debug bool `yaml:"debug"`
}

// databaseConfig carries the connection string for the metadata
// repository (component F). The spec names this PG_DATABASE_URL, but
// submeta's store package opens a local SQLite file rather than
// Postgres; the field is kept under that name so the environment
// variable still does its job, and simply names a file path instead of
// a Postgres DSN (see store.Open).
type databaseConfig struct {
	// connection string (file path) for the metadata store
	URL string `yaml:"url,omitempty"`
}

// global config variables, populated by Init
var Service serviceConfig
var Auth authConfig
var External externalConfig
var Database databaseConfig

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	Service  serviceConfig   `yaml:"service"`
	Auth     authConfig      `yaml:"auth"`
	External externalConfig  `yaml:"external"`
	Database databaseConfig  `yaml:"database"`
}

// This helper locates and reads a configuration file, returning an error
// indicating success or failure. All environment variables of the form
// ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	// before we do anything else, expand any provided environment variables
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile

	// compiled-in defaults, suitable for the test harness; every field
	// below corresponds to one of the environment variables in spec.md §6
	conf.Service.Name = "submeta"
	conf.Service.Port = 8080
	conf.Service.MaxConnections = 100
	conf.Service.PollInterval = int(time.Minute / time.Millisecond) // POLLING_INTERVAL
	conf.Service.DataDirectory = os.TempDir()

	conf.Auth.BaseURL = "http://localhost:8080"         // BASE_URL
	conf.Auth.RedirectURL = "http://localhost:8080/callback" // REDIRECT_URL
	conf.Auth.ClientId = "test-client-id"               // AAI_CLIENT_ID
	conf.Auth.ClientSecret = "test-client-secret"        // AAI_CLIENT_SECRET
	conf.Auth.OIDCURL = "http://localhost:9090"          // OIDC_URL
	conf.Auth.OIDCScope = "openid profile email"         // OIDC_SCOPE
	conf.Auth.AuthMethod = "oidc"                        // AUTH_METHOD
	conf.Auth.JWTSecret = "test-secret-change-me"        // JWT_SECRET

	conf.External.DataciteAPI = "https://api.test.datacite.org" // DATACITE_API
	conf.External.DatacitePrefix = "10.80210"                   // DATACITE_PREFIX
	conf.External.DataciteUser = "test-datacite-user"           // DATACITE_USER
	conf.External.DataciteKey = "test-datacite-key"             // DATACITE_KEY
	conf.External.DataciteURL = "https://doi.test.datacite.org" // DATACITE_URL
	conf.External.PIDURL = "http://localhost:9091"              // PID_URL
	conf.External.PIDApiKey = "test-pid-apikey"                 // PID_APIKEY
	conf.External.MetaxURL = "http://localhost:9092"            // METAX_URL
	conf.External.MetaxUser = "test-metax-user"                 // METAX_USER
	conf.External.MetaxPass = "test-metax-pass"                 // METAX_PASS
	conf.External.MetaxProviderOrg = "csc.fi"                   // METAX_PROVIDER_ORG
	conf.External.MetaxCatalogPid = "urn:nbn:fi:att:data-catalog-test" // METAX_CATALOG_PID
	conf.External.RemsURL = "http://localhost:9093"             // REMS_URL
	conf.External.RemsUserId = "test-rems-user"                 // REMS_USER_ID
	conf.External.RemsKey = "test-rems-key"                     // REMS_KEY
	conf.External.RemsOrgId = "test-org"                        // REMS_ORG_ID
	conf.External.RemsWorkflowId = 1                            // REMS_WORKFLOW_ID
	conf.External.AdminURL = "http://localhost:9094"            // ADMIN_URL

	conf.Database.URL = "submeta.db" // PG_DATABASE_URL

	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	// copy the config data into place
	Service = conf.Service
	Auth = conf.Auth
	External = conf.External
	Database = conf.Database

	return nil
}

func validateServiceParameters(params serviceConfig) error {
	if params.Port < 0 || params.Port > 65535 {
		return fmt.Errorf("Invalid port: %d (must be 0-65535)", params.Port)
	}
	if params.MaxConnections <= 0 {
		return fmt.Errorf("Invalid max_connections: %d (must be positive)",
			params.MaxConnections)
	}
	if params.PollInterval <= 0 {
		return fmt.Errorf("Non-positive poll interval specified: (%d ms)",
			params.PollInterval)
	}
	if params.DataDirectory == "" {
		return fmt.Errorf("No data directory specified")
	}
	return nil
}

func validateAuth(auth authConfig) error {
	switch auth.AuthMethod {
	case "oidc", "apikey":
	default:
		return fmt.Errorf("Invalid auth_method: %s (must be 'oidc' or 'apikey')", auth.AuthMethod)
	}
	if auth.AuthMethod == "oidc" && auth.OIDCURL == "" {
		return fmt.Errorf("auth_method is 'oidc' but no oidc_url was given")
	}
	return nil
}

func validateDatabase(db databaseConfig) error {
	if db.URL == "" {
		return fmt.Errorf("No database url given")
	}
	return nil
}

// This helper validates the given config, returning an error that indicates
// success or failure.
func validateConfig() error {
	if err := validateServiceParameters(Service); err != nil {
		return err
	}
	if err := validateAuth(Auth); err != nil {
		return err
	}
	return validateDatabase(Database)
}

// Initializes submeta's configuration using the given YAML byte data.
func Init(yamlData []byte) error {
	if err := readConfig(yamlData); err != nil {
		return err
	}
	return validateConfig()
}
