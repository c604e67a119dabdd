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

package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/carverauto/termbridge/pkg/broker"
	"github.com/carverauto/termbridge/pkg/config"
	"github.com/carverauto/termbridge/pkg/core/api"
	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/lifecycle"
	"github.com/carverauto/termbridge/pkg/logwatch"
)

func main() {
	configPath := flag.String("config", "/etc/termbridge/termbridge.json", "Path to termbridge config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("Failed to run termbridge: %v", err)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	var cfg api.Config

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return err
	}

	logger, err := lifecycle.CreateComponentLogger(cfg.ServiceName, cfg.Logging)
	if err != nil {
		return err
	}

	engine := labengine.NewHTTPClient(&cfg.Engine, logger)

	cacheTTL := time.Duration(cfg.Poll.CacheTTL)
	cache := logwatch.NewCache(cacheTTL, logwatch.RealClock())

	poller := logwatch.NewPoller(engine, cache, &cfg.Poll, logger)

	sessions := broker.New(engine, poller, &cfg.Broker, logger)

	server := api.NewAPIServer(&cfg,
		api.WithBroker(sessions),
		api.WithPoller(poller),
		api.WithLogger(logger),
	)

	return lifecycle.Run(ctx, &lifecycle.ServerOptions{
		ServiceName: cfg.ServiceName,
		Service:     server,
		Logger:      logger,
	})
}
