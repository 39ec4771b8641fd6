/*
Copyright 2024 Earnly Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/earnly-app/earnly"
	"github.com/earnly-app/earnly/config"
	"github.com/earnly-app/earnly/database"
	"github.com/earnly-app/earnly/internal/notification"
)

// Earnly represents the CLI application, encapsulating the root Cobra command.
type Earnly struct {
	cmd *cobra.Command
}

// earnlyInstance holds the engine instance and its configuration, shared by
// all subcommands.
type earnlyInstance struct {
	earnly *earnly.Earnly
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the engine before any
// subcommand runs.
func preRun(app *earnlyInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("earnly.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newEarnly, err := setupEarnly(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.earnly = newEarnly
		app.cnf = cnf

		return nil
	}
}

// setupEarnly creates and initializes a new engine instance connected to the
// configured data source.
func setupEarnly(cfg *config.Configuration) (*earnly.Earnly, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newEarnly, err := earnly.NewEarnly(db)
	if err != nil {
		return nil, fmt.Errorf("error creating earnly: %v", err)
	}
	return newEarnly, nil
}

// NewCLI creates the command-line interface for the Earnly engine, with
// subcommands for the API server and the side-effect workers.
func NewCLI() *Earnly {
	var configFile string
	b := &earnlyInstance{}

	var rootCmd = &cobra.Command{
		Use:   "earnly",
		Short: "Offer completion reconciliation engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./earnly.json", "Configuration file for the engine")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))

	return &Earnly{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Earnly) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
