package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	RazorpayKeyID         string        `mapstructure:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string        `mapstructure:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string        `mapstructure:"RAZORPAY_WEBHOOK_SECRET"`
	PaymentCurrency       string        `mapstructure:"PAYMENT_CURRENCY"`
	FeeScheduleFile       string        `mapstructure:"FEE_SCHEDULE_FILE"`
	GatewayTimeout        time.Duration `mapstructure:"GATEWAY_TIMEOUT"`

	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`
	SMSDryRun        bool   `mapstructure:"SMS_DRY_RUN"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// OTPEcho returns issued codes in the send-otp response. Test mode only.
	OTPEcho            bool          `mapstructure:"OTP_ECHO"`
	OTPTTL             time.Duration `mapstructure:"OTP_TTL"`
	OTPRateLimitMax    int           `mapstructure:"OTP_RATE_LIMIT_MAX"`
	OTPRateLimitWindow time.Duration `mapstructure:"OTP_RATE_LIMIT_WINDOW"`
	OTPCleanupInterval time.Duration `mapstructure:"OTP_CLEANUP_INTERVAL"`
	RateLimitBackend   string        `mapstructure:"RATE_LIMIT_BACKEND"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	UploadDir      string        `mapstructure:"UPLOAD_DIR"`
	MaxUploadSize  int64         `mapstructure:"MAX_UPLOAD_SIZE"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"JWT_SECRET", "TOKEN_TTL",
	"RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET", "RAZORPAY_WEBHOOK_SECRET",
	"PAYMENT_CURRENCY", "FEE_SCHEDULE_FILE", "GATEWAY_TIMEOUT",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "SMS_DRY_RUN",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM",
	"OTP_ECHO", "OTP_TTL", "OTP_RATE_LIMIT_MAX", "OTP_RATE_LIMIT_WINDOW",
	"OTP_CLEANUP_INTERVAL", "RATE_LIMIT_BACKEND",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"UPLOAD_DIR", "MAX_UPLOAD_SIZE", "REQUEST_TIMEOUT", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TOKEN_TTL", "168h")
	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("GATEWAY_TIMEOUT", "15s")
	v.SetDefault("SMS_DRY_RUN", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("OTP_ECHO", false)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_RATE_LIMIT_MAX", 3)
	v.SetDefault("OTP_RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("OTP_CLEANUP_INTERVAL", "0s")
	v.SetDefault("RATE_LIMIT_BACKEND", "memory")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_UPLOAD_SIZE", 5*1024*1024)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OTPEcho {
		log.Println("WARNING: OTP_ECHO is enabled: one-time codes are returned in API responses.")
		log.Println("WARNING: This is a test-mode switch and is refused when ENV=production.")
	}

	return cfg, nil
}

// Environments accepted in ENV. Anything else fails validation so a typo
// can never switch off the production checks.
var environments = map[string]bool{
	"development": true,
	"test":        true,
	"staging":     true,
	"production":  true,
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The signing secret
// must be at least 32 bytes everywhere and ENV must be a known value. In production the OTP echo switch is
// refused and gateway, SMS and SMTP credentials must be present.
func (c *Config) Validate() error {
	if !environments[c.Env] {
		return fmt.Errorf("ENV must be one of development, test, staging or production, got %q", c.Env)
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.OTPRateLimitMax <= 0 || c.OTPRateLimitWindow <= 0 {
		return fmt.Errorf("OTP_RATE_LIMIT_MAX and OTP_RATE_LIMIT_WINDOW must be positive")
	}
	switch c.RateLimitBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be \"memory\" or \"postgres\", got %q", c.RateLimitBackend)
	}

	if !c.IsProduction() {
		return nil
	}

	if c.OTPEcho {
		return fmt.Errorf("OTP_ECHO cannot be enabled when ENV=production")
	}
	if c.SMSDryRun {
		return fmt.Errorf("SMS_DRY_RUN cannot be enabled when ENV=production")
	}
	if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required in production")
	}
	if c.RazorpayWebhookSecret == "" {
		return fmt.Errorf("RAZORPAY_WEBHOOK_SECRET is required in production")
	}
	if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required in production")
	}
	if c.SMTPHost == "" || c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_HOST and SMTP_FROM are required in production")
	}
	return nil
}
