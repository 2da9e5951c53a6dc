// README: Entry point; loads config, wires services, starts the HTTP server and background loops.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"bagdrop/internal/config"
	httptransport "bagdrop/internal/http"
	"bagdrop/internal/http/handlers"
	"bagdrop/internal/infra"
	"bagdrop/internal/logger"
	"bagdrop/internal/maps"
	"bagdrop/internal/metrics"
	"bagdrop/internal/modules/contract"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/modules/location"
	"bagdrop/internal/modules/media"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/modules/pricing"
	"bagdrop/internal/modules/profile"
	"bagdrop/internal/modules/vicinity"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("loading config", "error", err)
	}
	log := logger.New(cfg.Log.Level)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase, cfg.Storage.Bucket)
	if err != nil {
		log.Fatal("firebase init", "error", err)
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		log.Fatal("firebase auth init", "error", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal("postgres init", "error", err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	// Feed: contract changes go through Redis so every instance's hub sees them.
	hub := feed.NewHub(log.With("component", "feed"))
	broker := feed.NewBroker(redisClient, hub, log.With("component", "feed"))

	objects, err := newObjectStore(ctx, cfg, app)
	if err != nil {
		log.Fatal("storage init", "error", err)
	}
	mediaSvc := media.NewService(objects, log.With("component", "media"))

	sender, err := newSender(ctx, cfg, app)
	if err != nil {
		log.Fatal("push init", "error", err)
	}
	notifySvc := notify.NewService(notify.NewStore(dbPool), sender, notify.Settings{
		Enabled: cfg.Push.Enabled,
		Sound:   "default",
		Timeout: cfg.Push.Timeout,
	}, log.With("component", "notify"), m)

	var (
		geocoder *maps.Geocoder
		routes   handlers.RouteEstimator
	)
	if cfg.Maps.APIKey != "" {
		if geocoder, err = maps.NewGeocoder(cfg.Maps.APIKey); err != nil {
			log.Fatal("maps init", "error", err)
		}
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal("maps init", "error", err)
		}
		routes = rs
	} else {
		log.Warn("BAGDROP_MAPS_API_KEY not set; addresses fall back to coordinates")
	}

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), log.With("component", "pricing"))
	profileSvc := profile.NewService(profile.NewStore(dbPool), notifySvc, mediaSvc, log.With("component", "profile"))

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(locationStore, cfg.Location.FixMaxAge, log.With("component", "location"))

	contractDeps := contract.Deps{
		Pricer:    pricingSvc,
		Notifier:  notifySvc,
		Publisher: broker,
		Positions: locationSvc,
		Uploader:  mediaSvc,
	}
	if geocoder != nil {
		contractDeps.Geocoder = geocoder
	}
	contractSvc := contract.NewService(contract.NewStore(dbPool), vicinity.NewGate(cfg.Vicinity), contractDeps, log.With("component", "contract"), m)

	fwdDeps := location.ForwarderDeps{
		Source:    location.NewStoreSource(locationStore, cfg.Location.FixMaxAge, log.With("component", "location")),
		Writer:    contractSvc,
		Snapshots: locationSvc,
	}
	if geocoder != nil {
		fwdDeps.Geocoder = geocoder
	}
	if cfg.Firebase.DatabaseURL != "" {
		rtdb, err := app.Database(ctx)
		if err != nil {
			log.Fatal("firebase database init", "error", err)
		}
		fwdDeps.Mirror = location.NewRTDBMirror(rtdb)
	}
	forwarder := location.NewForwarder(fwdDeps, location.WatchOptions{
		Interval:          cfg.Location.SampleInterval,
		MinDistanceMeters: cfg.Location.MinDisplacementM,
	}, log.With("component", "forwarder"), m)
	activator := location.NewActivator(contractSvc, forwarder, cfg.Location.ActivationInterval, log.With("component", "activator"))

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Contracts:   contractSvc,
		Profiles:    profileSvc,
		Pricing:     pricingSvc,
		Notify:      notifySvc,
		Location:    locationSvc,
		Forwarder:   forwarder,
		Activator:   activator,
		Hub:         hub,
		Routes:      routes,
		Verifier:    verifier,
		AuthTimeout: cfg.Auth.Timeout,
		Health: map[string]handlers.Pinger{
			"postgres": dbPool,
			"redis":    handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
		Gatherer:    reg,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         log.With("component", "http"),
		Metrics:     m,
	})
	server := httptransport.NewServer(cfg, router, log.With("component", "http"))

	statusEvents, cancelEvents := hub.Listen(feed.Filter{})
	defer cancelEvents()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return broker.Run(gctx) })
	g.Go(func() error { return activator.Run(gctx, statusEvents) })
	g.Go(func() error { return server.Run(gctx) })

	err = g.Wait()
	forwarder.Close()
	notifySvc.Wait()
	if err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func newObjectStore(ctx context.Context, cfg config.Config, app *firebase.App) (media.ObjectStore, error) {
	if cfg.Storage.Backend == "s3" {
		return media.NewS3Store(media.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.S3.Region,
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
		})
	}
	return media.NewGCSStore(ctx, app, cfg.Storage.Bucket)
}

func newSender(ctx context.Context, cfg config.Config, app *firebase.App) (notify.Sender, error) {
	if cfg.Push.Provider == "fcm" {
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewFCMSender(client), nil
	}
	return notify.NewGatewaySender(cfg.Push.GatewayURL, cfg.Push.Timeout), nil
}
