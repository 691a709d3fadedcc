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

package main

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/kbase/submeta/access"
	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/config"
	"github.com/kbase/submeta/extclient"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/object"
	"github.com/kbase/submeta/publish"
	"github.com/kbase/submeta/schema"
	"github.com/kbase/submeta/services"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/submission"
	"github.com/kbase/submeta/validate"
	"github.com/kbase/submeta/workflow"
	"github.com/kbase/submeta/xmlconv"
)

// prints usage info
func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "See config/config.go for details on config files.\n")
	os.Exit(1)
}

func enableLogging() {
	logLevel := new(slog.LevelVar)
	if config.Service.Debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
	handler := slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Debug logging enabled.")
}

// fernetKeyFromSecret derives a fernet key deterministically from an
// operator-chosen JWT_SECRET string of any length, so config doesn't
// need to carry a separately-generated, already-encoded fernet key.
func fernetKeyFromSecret(secret string) (*fernet.Key, error) {
	sum := sha256.Sum256([]byte(secret))
	var key fernet.Key
	if err := key.Decode(base64.URLEncoding.EncodeToString(sum[:])); err != nil {
		return nil, err
	}
	return &key, nil
}

// newService wires the metadata repository, validators, and the
// submission/object/publish/access layers that sit atop it into the
// lifecycle shell services.NewService serves.
func newService() (*services.Service, error) {
	st, err := store.Open(config.Database.URL, clock.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("opening metadata repository: %w", err)
	}

	reg, err := schema.NewRegistry(filepath.Join(config.Service.DataDirectory, "schemas"))
	if err != nil {
		return nil, fmt.Errorf("loading schema registry: %w", err)
	}

	workflows, err := workflow.LoadDirectory(filepath.Join(config.Service.DataDirectory, "workflows"))
	if err != nil {
		return nil, fmt.Errorf("loading workflow documents: %w", err)
	}
	lookup := func(name string) (*workflow.Workflow, bool) {
		wf, ok := workflows[name]
		return wf, ok
	}

	gen := idgen.NewGenerator()
	clk := clock.RealClock{}

	xmlParser := xmlconv.NewParser(reg)
	for _, schemaType := range xmlconv.BigpictureSchemaTypes() {
		xmlParser.RegisterPostProcessor(schemaType, xmlconv.SplitOnKey(schemaType))
	}

	objects := &object.Service{
		Store:     st,
		Validator: &validate.JSONValidator{Registry: reg},
		XMLParser: xmlParser,
		IDGen:     gen,
		Clock:     clk,
		Workflows: lookup,
	}
	submissions := &submission.Service{
		Store:     st,
		IDGen:     gen,
		Clock:     clk,
		Workflows: lookup,
	}

	fernetKey, err := fernetKeyFromSecret(config.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("deriving API-key fernet secret: %w", err)
	}
	accessSvc := &access.Service{
		Store:      st,
		IDGen:      gen,
		Clock:      clk,
		Hasher:     access.Sha256Hasher{},
		OIDC:       access.NewOIDCClient(config.Auth.OIDCURL, 30),
		FernetKeys: []*fernet.Key{fernetKey},
	}

	clients := publish.Clients{
		DOI: extclient.NewDOIClient(config.External.DataciteAPI, config.External.DataciteUser,
			config.External.DataciteKey, config.External.DatacitePrefix, 30),
		Catalog: extclient.NewCatalogClient(config.External.MetaxURL, config.External.MetaxUser,
			config.External.MetaxPass, config.Auth.ClientId, config.External.MetaxProviderOrg,
			config.External.MetaxCatalogPid, 30),
		Access: extclient.NewAccessClient(config.External.RemsURL, config.External.RemsKey,
			config.External.RemsUserId, config.External.RemsOrgId, 30),
		Admin: extclient.NewAdminClient(config.External.AdminURL, 30),
	}

	pub := &publish.Service{
		Store:                st,
		Submissions:          submissions,
		Objects:              objects,
		Clock:                clk,
		IDGen:                gen,
		Workflows:            lookup,
		Clients:              clients,
		AccessWorkflowId:     config.External.RemsWorkflowId,
		AccessOrganizationId: config.External.RemsOrgId,
		DataciteLandingURL:   config.External.DataciteURL,
	}

	return services.NewService(st, pub, accessSvc), nil
}

func main() {

	// the only argument is the configuration filename
	if len(os.Args) < 2 {
		usage()
	}
	configFile := os.Args[1]

	// read the configuration file and initialize the config package
	log.Printf("Reading configuration from '%s'...\n", configFile)
	file, err := os.Open(configFile)
	if err != nil {
		log.Panicf("Couldn't open %s: %s\n", configFile, err.Error())
	}
	defer file.Close()
	b, err := io.ReadAll(file)
	if err != nil {
		log.Panicf("Couldn't read configuration data: %s\n", err.Error())
	}
	err = config.Init(b)
	if err != nil {
		log.Panicf("Couldn't initialize the configuration: %s\n", err.Error())
	}

	enableLogging()

	service, err := newService()
	if err != nil {
		log.Panicf("Couldn't create the service: %s\n", err.Error())
	}

	// intercept the SIGINT, SIGHUP, SIGTERM, and SIGQUIT signals so we can shut
	// down the service gracefully if they are encountered
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	// start the service in a goroutine so it doesn't block
	go func() {
		err = service.Start(config.Service.Port)
		if err != nil { // on error, log the error message and issue a SIGINT
			log.Println(err.Error())
			thisProcess, _ := os.FindProcess(os.Getpid())
			thisProcess.Signal(os.Interrupt)
		}
	}()

	// block till we receive one of the above signals
	<-sigChan

	// create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// wait for connections to close until the deadline elapses
	service.Shutdown(ctx)
	log.Println("Shutting down")
	os.Exit(0)
}
