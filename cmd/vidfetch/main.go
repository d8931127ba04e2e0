package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vidfetch/vidfetch/internal/common"
	"github.com/vidfetch/vidfetch/internal/common/health"
	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
	"github.com/vidfetch/vidfetch/internal/vidfetch/server"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.VidfetchConfig
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&config, "./config/vidfetch", userSpecifiedConfig)

	log.Info("Starting...")
	log.Infof("Config %+v", config)

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		stopSignal := make(chan os.Signal, 1)
		signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignal
		cancel()
	}()

	healthChecks := health.NewMultiChecker()
	if err := server.Serve(ctx, &config, healthChecks); err != nil {
		log.WithError(err).Error("Vidfetch server failed")
		os.Exit(-1)
	}
}
