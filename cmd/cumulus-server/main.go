/*
Copyright 2023-2024 EscherCloud.

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
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/constants"
	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/content"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/iam"
	"github.com/eschercloudai/cumulus/pkg/project"
	"github.com/eschercloudai/cumulus/pkg/server"
	"github.com/eschercloudai/cumulus/pkg/server/handler"
	"github.com/eschercloudai/cumulus/pkg/storage"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/util/log"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

// start wires everything together and runs until signalled.
//
//nolint:cyclop
func start() error {
	s := &server.Server{}
	s.AddFlags(pflag.CommandLine)

	dbOptions := &db.Options{}
	dbOptions.AddFlags(pflag.CommandLine)

	contentOptions := &content.Options{}
	contentOptions.AddFlags(pflag.CommandLine)

	containerOptions := &container.Options{}
	containerOptions.AddFlags(pflag.CommandLine)

	storageOptions := &storage.Options{}
	storageOptions.AddFlags(pflag.CommandLine)

	computeOptions := &compute.Options{}
	computeOptions.AddFlags(pflag.CommandLine)

	iamOptions := &iam.Options{}
	iamOptions.AddFlags(pflag.CommandLine)

	var driverName string

	pflag.StringVar(&driverName, "container-driver", "docker", "Container runtime driver, docker or fake.")

	pflag.Parse()

	s.SetupLogging()

	logger := log.Log.WithName(constants.Application)

	logger.Info("service starting", "application", constants.Application, "version", constants.Version, "revision", constants.Revision)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.SetupOpenTelemetry(ctx); err != nil {
		return err
	}

	database, err := db.Open(ctx, dbOptions)
	if err != nil {
		return err
	}

	defer database.Close()

	store, err := content.New(contentOptions)
	if err != nil {
		return err
	}

	var driver container.Driver

	switch driverName {
	case "fake":
		driver = container.NewFakeDriver()
	default:
		driver, err = container.NewDockerDriver(containerOptions)
		if err != nil {
			return err
		}
	}

	clk := clock.Real{}

	vpcService := vpc.New(database, driver, clk)
	storageService := storage.New(database, store, clk, storageOptions)
	computeService := compute.New(database, driver, vpcService, clk, computeOptions)
	iamService := iam.New(database, clk, iamOptions)
	projectService := project.New(database, storageService, computeService, vpcService, clk)

	if err := projectService.Seed(ctx); err != nil {
		return err
	}

	h := handler.New(projectService, storageService, computeService, vpcService, iamService, &s.AuthOptions)

	httpServer, err := s.GetServer(h, iamService, iamOptions.APIKey)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		return storage.NewDeliverer(storageService).Run(groupCtx)
	})

	group.Go(func() error {
		return storage.NewLifecycleExecutor(storageService).Run(groupCtx)
	})

	group.Go(func() error {
		return compute.NewReconciler(computeService).Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func main() {
	if err := start(); err != nil {
		log.Log.Error(err, "server died unexpectedly")

		os.Exit(1)
	}
}
