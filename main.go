package main

import (
	"context"
	"time"

	"signature-elite-server/config"
	"signature-elite-server/keylock"
	"signature-elite-server/media"
	"signature-elite-server/middleware"
	"signature-elite-server/offers"
	"signature-elite-server/payment"
	"signature-elite-server/registry"
	"signature-elite-server/reviews"
	"signature-elite-server/routes"
	"signature-elite-server/storage"
	"signature-elite-server/trust"
	"signature-elite-server/users"
	"signature-elite-server/wishlist"

	"github.com/go-redis/redis/v8"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/logger"
	"github.com/kataras/iris/v12/middleware/recover"
)

func main() {
	app := iris.New()
	log := app.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app.Use(recover.New())
	app.Use(logger.New())

	db, err := storage.InitializeDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	var locks keylock.Locker = keylock.NewLocal()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		locks = keylock.NewRedis(client, cfg.LockTTL, log)
		log.Info("offer decisions serialized through redis")
	}

	directory := users.NewDirectory(db)
	listings := registry.New(db, directory, log)
	bridge := payment.NewBridge(payment.NewStripeGateway(cfg.StripeSecretKey), cfg.PaymentCurrency, log)

	var uploader media.Uploader
	if cfg.CloudinaryURL != "" {
		cld, err := media.NewCloudinary(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		uploader = cld
	} else {
		log.Warn("CLOUDINARY_URL not set, image uploads disabled")
	}

	var authn *middleware.Authenticator
	if cfg.JWKSURL != "" {
		var stop func()
		authn, stop, err = middleware.NewJWKS(cfg.JWKSURL, directory, log)
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer stop()
	} else {
		authn = middleware.NewHMAC([]byte(cfg.JWTSecret), directory, log)
	}

	routes.Register(app, authn, &routes.Handlers{
		Users:               directory,
		Registry:            listings,
		Trust:               trust.NewEnforcer(directory, listings, log),
		Offers:              offers.NewLedger(db, listings, directory, bridge, locks, log),
		Wishlist:            wishlist.New(db, listings),
		Reviews:             reviews.New(db, listings),
		Media:               media.NewService(uploader, listings, log),
		StripeWebhookSecret: cfg.StripeWebhookSecret,
	})

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Errorf("server stopped: %v", err)
	}
}
