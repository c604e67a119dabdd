/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// cmdcheck runs a scripted command list against a device console and
// reports pass/fail per command. Exit status is non-zero when any
// command fails or times out.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/carverauto/termbridge/pkg/harness"
	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/lifecycle"
	"github.com/carverauto/termbridge/pkg/logwatch"
	"github.com/carverauto/termbridge/pkg/models"
)

func main() {
	var (
		endpoint  = flag.String("engine", "", "Lab engine base URL (required)")
		apiToken  = flag.String("token", "", "Lab engine API token")
		labID     = flag.String("lab", "", "Lab id (required)")
		nodeID    = flag.String("node", "", "Node id (required)")
		consoleID = flag.String("console", "console0", "Console id")
		cmdFile   = flag.String("commands", "", "File with one command per line (required)")
		timeout   = flag.Duration("timeout", 30*time.Second, "Per-command timeout")
		debug     = flag.Bool("debug", false, "Enable debug logging")
	)

	flag.Parse()

	if *endpoint == "" || *labID == "" || *nodeID == "" || *cmdFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := lifecycle.CreateComponentLogger("cmdcheck", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdcheck: %v\n", err)
		os.Exit(1)
	}

	logger.SetDebug(*debug)

	commands, err := readCommands(*cmdFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdcheck: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	engine := labengine.NewHTTPClient(&labengine.Config{Endpoint: *endpoint, APIToken: *apiToken}, logger)
	cache := logwatch.NewCache(0, logwatch.RealClock())
	poller := logwatch.NewPoller(engine, cache, nil, logger)

	consoleKey, err := engine.GetConsoleKey(ctx, *labID, *nodeID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdcheck: console key: %v\n", err)
		os.Exit(1)
	}

	transport, err := harness.DialWS(ctx, engine.ConsoleEndpoint(consoleKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdcheck: console dial: %v\n", err)
		os.Exit(1)
	}

	defer func() { _ = transport.Close() }()

	cfg := &harness.Config{CommandTimeout: models.Duration(*timeout)}
	runner := harness.NewRunner(transport, poller, *labID, *nodeID, *consoleID, cfg, logger)

	summary, err := runner.Run(ctx, commands)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdcheck: run: %v\n", err)
		os.Exit(1)
	}

	printSummary(summary)

	if !summary.Ok() {
		os.Exit(1)
	}
}

func readCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	var commands []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		commands = append(commands, scanner.Text())
	}

	return commands, scanner.Err()
}

func printSummary(summary *harness.Summary) {
	for _, res := range summary.Results {
		line := fmt.Sprintf("%-8s %s", res.Status, res.Command)
		if res.Reason != "" {
			line += "  (" + res.Reason + ")"
		}

		fmt.Println(line)
	}

	fmt.Printf("\n%d commands: %d passed, %d failed, %d timed out\n",
		summary.Total, summary.Passed, summary.Failed, summary.TimedOut)
}
