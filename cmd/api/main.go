package main

import (
	"errors"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gsw-platform/internal/checkout"
	"gsw-platform/internal/handlers"
	"gsw-platform/internal/mailer"
	"gsw-platform/internal/middleware"
	"gsw-platform/internal/speech"
	"gsw-platform/internal/store"
	"gsw-platform/internal/worker"
)

// Config holds everything loaded from config.env / the environment.
type Config struct {
	DSN                 string `mapstructure:"DSN"`
	Port                string `mapstructure:"PORT"`
	JWTSecret           string `mapstructure:"JWT_SECRET"`
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	OpenAIAPIKey        string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `mapstructure:"OPENAI_BASE_URL"`
	GenerationURL       string `mapstructure:"GENERATION_URL"`
	InternalAPIKey      string `mapstructure:"INTERNAL_API_KEY"`
	SMTPHost            string `mapstructure:"SMTP_HOST"`
	SMTPPort            string `mapstructure:"SMTP_PORT"`
	SMTPUser            string `mapstructure:"SMTP_USER"`
	SMTPPass            string `mapstructure:"SMTP_PASS"`
	SMTPFrom            string `mapstructure:"SMTP_FROM"`
	SuccessURL          string `mapstructure:"SUCCESS_URL"`
	CancelURL           string `mapstructure:"CANCEL_URL"`
	PriceCents          int64  `mapstructure:"PRICE_CENTS"`
	ProductName         string `mapstructure:"PRODUCT_NAME"`
}

// loadConfig reads config.env from the working directory, letting real
// environment variables override file values.
func loadConfig() (config Config, err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("PRICE_CENTS", 2999)
	viper.SetDefault("PRODUCT_NAME", "Graduation Speech Drafts")
	viper.SetDefault("GENERATION_URL", "http://localhost:8080/api/generate")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.Info("Starting graduation speech writer server...")

	config, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("Cannot load config")
	}

	// Apply migrations before taking traffic: the unique index on
	// stripe_session_id is what makes webhook processing safe to replay.
	m, err := migrate.New("file://migrations", config.DSN)
	if err != nil {
		log.WithError(err).Fatal("Could not create migration instance")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithError(err).Fatal("Could not apply migrations")
	}
	log.Info("Database migrations applied")

	db, err := sqlx.Connect("pgx", config.DSN)
	if err != nil {
		log.WithError(err).Fatal("Cannot connect to database")
	}
	defer db.Close()
	log.Info("Connected to PostgreSQL")

	pendingStore := store.NewPendingInputStore(db)
	purchaseStore := store.NewPurchaseStore(db)

	processor := checkout.NewProcessor(pendingStore, purchaseStore)
	trigger := worker.NewHTTPTrigger(config.GenerationURL, config.InternalAPIKey)
	hub := worker.NewHub(trigger)
	go hub.Run()

	generator := speech.NewGenerator(config.OpenAIAPIKey, config.OpenAIBaseURL)
	smtpMailer := mailer.NewSMTPMailer(config.SMTPHost, config.SMTPPort, config.SMTPUser, config.SMTPPass, config.SMTPFrom)

	authHandler := handlers.NewAuthHandler(db, config.JWTSecret)
	adminHandler := handlers.NewAdminHandler(purchaseStore)
	checkoutHandler := handlers.NewCheckoutHandler(pendingStore, config.StripeSecretKey, handlers.CheckoutOptions{
		PriceCents:  config.PriceCents,
		ProductName: config.ProductName,
		SuccessURL:  config.SuccessURL,
		CancelURL:   config.CancelURL,
	})
	webhookHandler := handlers.NewWebhookHandler(processor, hub, config.StripeWebhookSecret)
	generateHandler := handlers.NewGenerateHandler(purchaseStore, generator, smtpMailer, config.InternalAPIKey)

	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders,
		"Authorization", handlers.SignatureHeader, handlers.TestModeHeader, handlers.InternalKeyHeader)
	r.Use(cors.New(corsConfig))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(config.JWTSecret))
		{
			admin.GET("/purchases", adminHandler.ListPurchases)
			admin.GET("/purchases/:reference", adminHandler.GetPurchase)
		}

		api.POST("/checkout", checkoutHandler.CreateCheckoutSession)
		api.POST("/webhook/stripe", webhookHandler.HandleStripeWebhook)
		api.POST("/generate", generateHandler.GenerateSpeeches)
	}

	addr := ":" + config.Port
	log.WithField("addr", addr).Info("Server starting")
	if err := r.Run(addr); err != nil {
		log.WithError(err).Fatal("Could not start server")
	}
}
