// Command polaris-consumer-demo repeatedly discovers and load-balances
// across a target service, printing the chosen instance on each tick.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polarismesh/polaris-go/api"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

func main() {
	configPath := flag.String("config", envDefault("POLARIS_CONSUMER_CONFIG", ""), "path to polaris.yaml")
	dotenv := flag.String("dotenv", envDefault("POLARIS_CONSUMER_DOTENV", ""), ".env overlay for examples")
	namespace := flag.String("namespace", envDefault("POLARIS_CONSUMER_NAMESPACE", "default"), "target service namespace")
	service := flag.String("service", envDefault("POLARIS_CONSUMER_SERVICE", "echo-service"), "target service name")
	policy := flag.String("lb-policy", "", "load balancer policy override (empty uses the configured default)")
	interval := flag.Duration("interval", 3*time.Second, "interval between discovery ticks")
	flag.Parse()

	log := logging.NewFromEnv("polaris-consumer-demo")
	logging.SetGlobal(log)

	opts := []config.Option{}
	if *configPath != "" {
		opts = append(opts, config.WithConfigPath(*configPath))
	}
	if *dotenv != "" {
		opts = append(opts, config.WithDotenv(*dotenv))
	}
	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}

	consumer, err := api.NewConsumerAPI(cfg)
	if err != nil {
		log.WithError(err).Fatal("build consumer api")
	}
	defer consumer.Destroy()

	svc := model.ServiceKey{Namespace: *namespace, Service: *service}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return
		case <-ticker.C:
			instance, err := consumer.ChooseInstance(ctx, model.GetInstancesRequest{
				Service: svc,
				Timeout: cfg.Global.API.Timeout,
				Criteria: model.Criteria{
					Policy: *policy,
				},
			})
			if err != nil {
				log.WithError(err).Warn("choose instance")
				continue
			}
			log.WithFields(map[string]interface{}{
				"instance_id": instance.ID,
				"host":        instance.Host,
				"port":        instance.Port,
				"weight":      instance.Weight,
			}).Info("chose instance")
		}
	}
}

func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
