// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"os"
	"path/filepath"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/spanlabs/span/api"
	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/eventdb"
	"github.com/spanlabs/span/log"
	"github.com/spanlabs/span/lvldb"
	"github.com/spanlabs/span/metrics"
	"github.com/spanlabs/span/settle"
	"github.com/spanlabs/span/span"
)

var (
	version   string
	gitCommit string
	gitTag    string
)

var logger = log.WithContext("pkg", "main")

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Span",
		Usage:     "Cross-network bridge validator node",
		Copyright: "2025 Span Labs",
		Flags: []cli.Flag{
			dataDirFlag,
			networksFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			jsonLogsFlag,
			pprofFlag,
			enableAPILogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			verifyingKeyFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	logLevel := initLogger(ctx)

	networksPath := ctx.String(networksFlag.Name)
	if networksPath == "" {
		cli.ShowAppHelp(ctx)
		fmt.Println("networks flag not specified")
		os.Exit(1)
	}
	cfg, err := bridge.LoadConfig(networksPath)
	if err != nil {
		fatal(fmt.Sprintf("load networks config [%v]: %v", networksPath, err))
	}

	dataDir := makeDataDir(ctx)

	mainDB, err := lvldb.New(filepath.Join(dataDir, "main.db"), lvldb.Options{})
	if err != nil {
		fatal(fmt.Sprintf("open main database: %v", err))
	}
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()

	eventDB, err := eventdb.New(filepath.Join(dataDir, "events.db"))
	if err != nil {
		fatal(fmt.Sprintf("open event database: %v", err))
	}
	defer func() { logger.Info("closing event database..."); eventDB.Close() }()

	verifyingKey, verifier := makeVerifier(ctx)

	core := bridge.New(mainDB, cfg, verifier, verifyingKey, eventDB)
	if err := core.Initialize(); err != nil {
		fatal(fmt.Sprintf("initialize bridge: %v", err))
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, stop, err := startHTTPServer(ctx.String(metricsAddrFlag.Name), metrics.HTTPHandler())
		if err != nil {
			fatal(fmt.Sprintf("start metrics server: %v", err))
		}
		defer func() { logger.Info("stopping metrics server..."); stop() }()
		logger.Info("metrics server started", "url", url)
	}

	apiHandler := api.New(core, eventDB, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		PprofOn:         ctx.Bool(pprofFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
		LogLevel:        logLevel,
	})
	apiURL, stopAPI, err := startHTTPServer(ctx.String(apiAddrFlag.Name), apiHandler)
	if err != nil {
		fatal(fmt.Sprintf("start API server: %v", err))
	}
	defer func() { logger.Info("stopping API server..."); stopAPI() }()

	printStartupMessage(cfg, dataDir, apiURL)

	<-handleExitSignal()
	return nil
}

// makeVerifier builds the settlement proof verifier. Until a production prover
// integration lands, an unset verifying key selects a permissive verifier that
// must never be used outside development.
func makeVerifier(ctx *cli.Context) (span.Bytes32, settle.ProofVerifier) {
	keyHex := ctx.String(verifyingKeyFlag.Name)
	if keyHex == "" {
		logger.Warn("no verifying key configured, settlement proofs will NOT be checked")
		return span.Bytes32{}, settle.VerifierFunc(func(span.Bytes32, []byte, []byte) error {
			return nil
		})
	}
	key, err := span.ParseBytes32(keyHex)
	if err != nil {
		fatal(fmt.Sprintf("parse verifying key: %v", err))
	}
	logger.Warn("settlement proof verification is a stub, non-empty proofs are accepted unchecked")
	return key, settle.VerifierFunc(func(vk span.Bytes32, publicValues, proof []byte) error {
		// TODO: verify Groth16 settlement proofs once the prover circuit is frozen
		if len(proof) == 0 {
			return fmt.Errorf("empty proof")
		}
		return nil
	})
}

func printStartupMessage(cfg *bridge.Config, dataDir, apiURL string) {
	fmt.Printf(`Starting %v
    Version     %v
    Networks    %v
    Data dir    %v
    API portal  %v
`,
		"Span",
		fullVersion(),
		len(cfg.Networks),
		dataDir,
		apiURL)
}
