package config

import (
	"errors"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	AutoMigrate         bool

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	Currency            string

	// LargeTradeThreshold is the notional above which a senior broker must approve.
	LargeTradeThreshold decimal.Decimal

	KYCBaseURL       string
	KYCAPIToken      string
	KYCWebhookSecret string

	SupportDeskURL       string
	SupportDeskEmail     string
	SupportDeskToken     string
	SupportWebhookSecret string

	PushAPIURL    string
	PushServerKey string

	SendinblueAPIKey string // SENDINBLUE_API_KEY for welcome/KYC emails (Brevo)
	MailFrom         string

	SupabaseURL       string
	SupabaseSecretKey string // service_role key; used for signed document upload URLs

	KafkaBrokers []string
	KafkaTopic   string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CURRENCY", "usd")
	viper.SetDefault("LARGE_TRADE_THRESHOLD", "100000")
	viper.SetDefault("KAFKA_TOPIC", "brokerdesk.events")

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	if env == "production" && viper.GetString("STRIPE_WEBHOOK_SECRET") == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is required in production")
	}

	threshold, err := decimal.NewFromString(viper.GetString("LARGE_TRADE_THRESHOLD"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:                  env,
		Port:                 viper.GetString("PORT"),
		LogLevel:             viper.GetString("LOG_LEVEL"),
		SessionSecret:        viper.GetString("SESSION_SECRET"),
		DatabaseURL:          dbURL,
		RedisURL:             viper.GetString("REDIS_URL"),
		FrontendURLEndsWith:  viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:          viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:    strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:       viper.GetString("HEALTH_ADMIN_KEY"),
		AutoMigrate:          viper.GetBool("AUTO_MIGRATE"),
		StripeSecretKey:      viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  viper.GetString("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:   viper.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:    viper.GetString("CHECKOUT_CANCEL_URL"),
		Currency:             strings.ToLower(viper.GetString("CURRENCY")),
		LargeTradeThreshold:  threshold,
		KYCBaseURL:           viper.GetString("KYC_BASE_URL"),
		KYCAPIToken:          viper.GetString("KYC_API_TOKEN"),
		KYCWebhookSecret:     viper.GetString("KYC_WEBHOOK_SECRET"),
		SupportDeskURL:       viper.GetString("SUPPORT_DESK_URL"),
		SupportDeskEmail:     viper.GetString("SUPPORT_DESK_EMAIL"),
		SupportDeskToken:     viper.GetString("SUPPORT_DESK_TOKEN"),
		SupportWebhookSecret: viper.GetString("SUPPORT_WEBHOOK_SECRET"),
		PushAPIURL:           viper.GetString("PUSH_API_URL"),
		PushServerKey:        viper.GetString("PUSH_SERVER_KEY"),
		SendinblueAPIKey:     viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:             viper.GetString("MAIL_FROM"),
		SupabaseURL:          viper.GetString("SUPABASE_URL"),
		SupabaseSecretKey:    viper.GetString("SUPABASE_SECRET_KEY"),
		KafkaBrokers:         splitList(viper.GetString("KAFKA_BROKERS")),
		KafkaTopic:           viper.GetString("KAFKA_TOPIC"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
