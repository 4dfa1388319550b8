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

// Package main is the coco process entrypoint. `coco serve` wires the
// Config, State Store, Blocklist, Forwarder, Endpoint Engine, Queue,
// Worker, Scheduler, and Frontend together and runs until a shutdown
// signal arrives. A client CLI is out of scope (a thin HTTP wrapper
// a caller can write against the Frontend's plain JSON surface).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coco",
		Short: "coco is a single-tenant configuration controller",
		Long:  "coco turns declarative endpoint definitions into coordinated fan-out HTTP actions against a fleet of worker nodes.",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
