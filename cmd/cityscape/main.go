// Copyright 2025 Kadir Pekel
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

// Command cityscape serves the city guide agents over HTTP.
//
// Usage:
//
//	cityscape                       # same as "cityscape serve"
//	cityscape serve --port 9000 --env-file prod.env
//	cityscape version
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// AppName is the application name used in session and A2A paths.
const AppName = "cityscape"

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Start the HTTP server (default)."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string   `short:"c" help:"Path to an optional YAML config file." type:"path"`
	EnvFile   []string `name:"env-file" help:"Additional .env files, loaded before ./.env." type:"path"`
	LogLevel  string   `help:"Log level (debug, info, warn, error). Overrides LOG_LEVEL."`
	LogFile   string   `help:"Log file path (empty = stderr). Overrides LOG_FILE."`
	LogFormat string   `help:"Log format (simple, verbose, json). Overrides LOG_FORMAT."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("cityscape version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("cityscape"),
		kong.Description("City guide agents: cityscape pictures and city trips."),
		kong.UsageOnError(),
	)
}

func main() {
	cli := CLI{}
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
