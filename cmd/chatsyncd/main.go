package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/coachly/chatsync/internal/client"
	"github.com/coachly/chatsync/internal/config"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "chatsync.toml", "path to the TOML config file")
	envFlag := flag.String("env", "", "optional env file seeding "+config.TokenEnv)
	flag.Parse()

	if _, err := os.Stat(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: config file %q: %v\n", *configFlag, err)
		os.Exit(1)
	}

	app := fx.New(
		client.Module(client.Params{ConfigPath: *configFlag, EnvPath: *envFlag}),
	)

	app.Run()
}
