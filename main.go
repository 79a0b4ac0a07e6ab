package main

import (
	"fmt"
	"os"
	"strings"

	"fjacquet/stmt-ledger/cmd/batches"
	"fjacquet/stmt-ledger/cmd/export"
	"fjacquet/stmt-ledger/cmd/importcmd"
	"fjacquet/stmt-ledger/cmd/merchants"
	"fjacquet/stmt-ledger/cmd/root"
	"fjacquet/stmt-ledger/cmd/rules"
	"fjacquet/stmt-ledger/cmd/tags"
	"fjacquet/stmt-ledger/internal/config"

	"github.com/sirupsen/logrus"
)

func init() {
	// .env must be loaded before the first logger reads LOG_LEVEL
	config.LoadEnv()
	logrus.SetLevel(envLogLevel())

	root.Init()
	root.Cmd.AddCommand(importcmd.Cmd)
	root.Cmd.AddCommand(tags.Cmd)
	root.Cmd.AddCommand(rules.Cmd)
	root.Cmd.AddCommand(merchants.Cmd)
	root.Cmd.AddCommand(export.Cmd)
	root.Cmd.AddCommand(batches.Cmd)
}

// envLogLevel returns the level named by LOG_LEVEL, info by default.
func envLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
