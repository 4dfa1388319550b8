// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"coco/internal/blocklist"
	"coco/internal/config"
	"coco/internal/endpoint"
	"coco/internal/engine"
	"coco/internal/forwarder"
	"coco/internal/frontend"
	"coco/internal/logging"
	"coco/internal/queue"
	"coco/internal/scheduler"
	"coco/internal/slacklog"
	"coco/internal/state"
	"coco/internal/worker"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coco controller",
		Long:  "Load a coco configuration file and run the Frontend, Worker, and Scheduler until terminated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("COCO_CONFIG")
			}
			if configPath == "" {
				return fmt.Errorf("serve: --config or COCO_CONFIG is required")
			}
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the coco YAML configuration (or set COCO_CONFIG)")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	var shipper *slacklog.Shipper
	if cfg.SlackToken != "" {
		var rules []slacklog.Rule
		for prefix, channel := range cfg.SlackRules {
			rules = append(rules, slacklog.Rule{Prefix: prefix, Channel: channel})
		}
		shipper = slacklog.New(cfg.SlackToken, rules, 256)
		log.AddSink(shipper)
		defer shipper.Stop()
	}

	groups, err := cfg.ResolveGroups()
	if err != nil {
		return err
	}

	defs, err := endpoint.LoadDir(cfg.EndpointDir)
	if err != nil {
		return err
	}
	for name := range defs {
		if name == "" || name[0] == '@' {
			return fmt.Errorf("serve: endpoint name %q collides with a reserved administrative prefix", name)
		}
	}

	_, activeExistedErr := os.Stat(filepath.Join(cfg.StoragePath, "active"))
	hadPriorState := activeExistedErr == nil

	st, err := state.New(cfg.StoragePath, cfg.ExcludeFromReset)
	if err != nil {
		return err
	}
	if !hadPriorState && len(cfg.LoadState) > 0 {
		if err := st.Reset(cfg.LoadState); err != nil {
			return fmt.Errorf("serve: seed initial state: %w", err)
		}
	}

	bl, err := blocklist.New(cfg.BlocklistPath, cfg.AllHosts(groups))
	if err != nil {
		return err
	}

	fwd := forwarder.New(groups, bl, cfg.SessionLimit)
	eng := engine.New(defs, groups, fwd, st, cfg.Timeout())

	queueCapacity := cfg.QueueLength
	if queueCapacity <= 0 {
		queueCapacity = 1 << 20 // "0 = unbounded" per the configuration contract
	}
	var q queue.Queue
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		q = queue.NewRedis(queue.NewGoRedisClient(rdb), "coco:queue", queueCapacity)
	} else {
		q = queue.NewMem(queueCapacity)
	}

	w := worker.New(q, eng, bl, st, log)
	w.Start()
	defer w.Stop()

	sch := scheduler.New(defs, q, st, log)
	sch.Start()
	defer sch.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	fe := frontend.New(addr, defs, q, cfg.FrontendTimeout(), log)

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}

	errCh := make(chan error, 2)
	go func() {
		if err := fe.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("frontend: %w", err)
		}
	}()
	go func() {
		log.Info("metrics listening on %s", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Error("server error: %v", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fe.Shutdown(ctx); err != nil {
		log.Error("frontend shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Error("metrics shutdown: %v", err)
	}
	return nil
}
