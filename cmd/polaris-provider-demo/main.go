// Command polaris-provider-demo registers one instance against a Polaris
// cluster, heartbeats it automatically, and deregisters on shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/polarismesh/polaris-go/api"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

func main() {
	configPath := flag.String("config", envDefault("POLARIS_PROVIDER_CONFIG", ""), "path to polaris.yaml")
	dotenv := flag.String("dotenv", envDefault("POLARIS_PROVIDER_DOTENV", ""), ".env overlay for examples")
	namespace := flag.String("namespace", envDefault("POLARIS_PROVIDER_NAMESPACE", "default"), "service namespace")
	service := flag.String("service", envDefault("POLARIS_PROVIDER_SERVICE", "echo-service"), "service name")
	host := flag.String("host", envDefault("POLARIS_PROVIDER_HOST", "127.0.0.1"), "instance host")
	port := flag.Int("port", envIntDefault("POLARIS_PROVIDER_PORT", 8080), "instance port")
	weight := flag.Uint("weight", 100, "instance weight")
	flag.Parse()

	log := logging.NewFromEnv("polaris-provider-demo")
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

	provider, err := api.NewProviderAPI(cfg)
	if err != nil {
		log.WithError(err).Fatal("build provider api")
	}
	defer provider.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := model.ServiceKey{Namespace: *namespace, Service: *service}
	resp, err := provider.Register(ctx, model.InstanceRegisterRequest{
		Service:       svc,
		Host:          *host,
		Port:          uint32(*port),
		Weight:        uint32(*weight),
		AutoHeartbeat: true,
		TTL:           5,
		Timeout:       cfg.Global.API.Timeout,
	})
	if err != nil {
		log.WithError(err).Fatal("register instance")
	}
	log.WithFields(map[string]interface{}{
		"instance_id": resp.InstanceID,
		"existed":     resp.Existed,
		"service":     svc.String(),
	}).Info("instance registered")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	deregisterCtx, deregisterCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer deregisterCancel()
	if err := provider.Deregister(deregisterCtx, model.InstanceDeregisterRequest{
		Service: svc,
		Host:    *host,
		Port:    uint32(*port),
		Timeout: cfg.Global.API.Timeout,
	}); err != nil {
		log.WithError(err).Warn("deregister instance")
	}
}

func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envIntDefault(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
