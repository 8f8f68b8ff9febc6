package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/config"
	"github.com/hamradio-go/dmr-trunkctl/pkg/database"
	"github.com/hamradio-go/dmr-trunkctl/pkg/dispatch"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
	"github.com/hamradio-go/dmr-trunkctl/pkg/metrics"
	"github.com/hamradio-go/dmr-trunkctl/pkg/mqtt"
	"github.com/hamradio-go/dmr-trunkctl/pkg/pduin"
	"github.com/hamradio-go/dmr-trunkctl/pkg/sitemodel"
	"github.com/hamradio-go/dmr-trunkctl/pkg/trunking"
	"github.com/hamradio-go/dmr-trunkctl/pkg/tuner"
	"github.com/hamradio-go/dmr-trunkctl/pkg/web"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	listenAddr := flag.String("listen", "127.0.0.1:9910", "UDP address to receive decoded CSBK PDU frames on")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dmrtrunkctl %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})
	log.Info("Starting dmrtrunkctl",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("build_time", buildTime))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if *validateOnly {
		log.Info("Configuration is valid")
		os.Exit(0)
	}

	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("Configuration loaded successfully", logger.String("config_file", *configFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log.WithComponent("database"))
	if err != nil {
		log.Error("Failed to initialize database", logger.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", logger.Error(err))
		}
	}()

	chanRepo := database.NewTrunkChannelRepository(db.GetDB())
	groupRepo := database.NewTalkgroupRepository(db.GetDB())
	tuneEventRepo := database.NewTuneEventRepository(db.GetDB())
	userRepo := database.NewDMRUserRepository(db.GetDB())

	seedTrunkingState(cfg, chanRepo, groupRepo, log)

	chanMap, err := chanRepo.LoadAll()
	if err != nil {
		log.Error("Failed to load trunk channel map", logger.Error(err))
		os.Exit(1)
	}
	groupRows, err := groupRepo.LoadAll()
	if err != nil {
		log.Error("Failed to load talkgroup map", logger.Error(err))
		os.Exit(1)
	}
	groupMap := make(map[uint32]sitemodel.GroupEntry, len(groupRows))
	for tgid, g := range groupRows {
		groupMap[tgid] = sitemodel.GroupEntry{Name: g.Name, Mode: g.Mode}
	}

	store := sitemodel.New(groupMap, chanMap)

	rig := tuner.NewRigctl(tuner.RigctlConfig{
		Host:    cfg.Trunking.Tuner.Host,
		Port:    cfg.Trunking.Tuner.Port,
		Timeout: time.Duration(cfg.Trunking.Tuner.TimeoutSeconds) * time.Second,
	}, log.WithComponent("tuner"))
	defer rig.Close()

	collector := metrics.NewCollector()
	publisher := mqtt.New(mqtt.Config{
		Enabled:     cfg.MQTT.Enabled,
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		QoS:         cfg.MQTT.QoS,
		Retained:    cfg.MQTT.Retained,
	}, log.WithComponent("mqtt"))
	if err := publisher.Start(ctx); err != nil {
		log.Warn("MQTT publisher failed to connect, continuing without it", logger.Error(err))
	}
	defer publisher.Stop()

	webServer := web.NewServer(cfg.Web, log.WithComponent("web"))
	webServer.WithSiteModel(store).
		WithTuneEventRepo(tuneEventRepo).
		WithUserRepo(userRepo)

	policyCfg := trunking.Config{
		TrunkEnabled:     cfg.Trunking.Enabled,
		TuneGroupCalls:   cfg.Trunking.TuneGroupCalls,
		TunePrivateCalls: cfg.Trunking.TunePrivateCalls,
		TuneDataCalls:    cfg.Trunking.TuneDataCalls,
		UseAllowList:     cfg.Trunking.UseAllowList,
		HangTime:         time.Duration(cfg.Trunking.HangTimeSeconds) * time.Second,
		SetmodBW:         cfg.Trunking.SetmodBandwidth,
		DmrlaOverrideSet: cfg.Trunking.DMRLAOverrideSet,
		DmrlaOverrideN:   cfg.Trunking.DMRLAOverrideN,
	}
	controller := trunking.NewController(policyCfg, store, rig, log.WithComponent("trunking")).
		WithMetrics(collector).
		WithPublisher(publisher).
		WithBroadcaster(webServer).
		WithRecorder(tuneEventRepo)

	loop := dispatch.New(store, controller, cfg.Trunking.DMRLAOverrideSet, cfg.Trunking.DMRLAOverrideN, log.WithComponent("dispatch")).
		WithMetrics(collector)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("Web server error", logger.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		promServer := metrics.NewPrometheusServer(metrics.PrometheusConfig{
			Enabled: cfg.Metrics.Prometheus.Enabled,
			Port:    cfg.Metrics.Prometheus.Port,
			Path:    cfg.Metrics.Prometheus.Path,
		}, collector, log.WithComponent("metrics"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := promServer.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("Metrics server error", logger.Error(err))
			}
		}()
	}

	listener := pduin.New(*listenAddr, loop, log.WithComponent("pduin"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("PDU listener error", logger.Error(err))
			cancel()
		}
	}()

	log.Info("dmrtrunkctl initialized",
		logger.Bool("trunking_enabled", cfg.Trunking.Enabled),
		logger.String("pdu_listen_addr", *listenAddr),
		logger.String("tuner", fmt.Sprintf("%s:%d", cfg.Trunking.Tuner.Host, cfg.Trunking.Tuner.Port)))

	sig := <-sigChan
	log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	cancel()
	listener.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Clean shutdown completed")
	case <-time.After(5 * time.Second):
		log.Warn("Shutdown timeout, forcing exit")
	}

	log.Info("dmrtrunkctl stopped")
}

// seedTrunkingState writes the YAML-configured channel/group maps
// into the database on every start. Upsert overwrites the rows the
// config names; rows the config does not name are left untouched.
func seedTrunkingState(cfg *config.Config, chanRepo *database.TrunkChannelRepository, groupRepo *database.TalkgroupRepository, log *logger.Logger) {
	for _, ch := range cfg.Trunking.Channels {
		if err := chanRepo.Upsert(&database.TrunkChannel{LPChanNum: ch.LPChanNum, FreqHz: ch.FreqHz}); err != nil {
			log.Warn("Failed to seed trunk channel", logger.Error(err))
		}
	}
	for _, g := range cfg.Trunking.Groups {
		if err := groupRepo.Upsert(&database.Talkgroup{TGID: g.TGID, Name: g.Name, Mode: g.Mode}); err != nil {
			log.Warn("Failed to seed talkgroup", logger.Error(err))
		}
	}
}
