package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Internal     InternalAPIConfig
	Stripe       StripeConfig
	EasyPost     EasyPostConfig
	Pricing      PricingConfig
	Shipping     ShippingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Automation   AutomationConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = "file:fastidp.db?cache=shared"
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FASTIDP_APP_ENV" required:"true"`
	Port         string   `envconfig:"FASTIDP_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FASTIDP_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FASTIDP_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FASTIDP_CORS_ORIGINS" default:"http://localhost:3000,https://fastidp.com,https://www.fastidp.com"`
	PublicURL    string   `envconfig:"FASTIDP_PUBLIC_URL" default:"https://fastidp.com"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FASTIDP_DB_DSN"`
	Driver string `envconfig:"FASTIDP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FASTIDP_DB_HOST"`
	LegacyPort     int    `envconfig:"FASTIDP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FASTIDP_DB_USER"`
	LegacyPassword string `envconfig:"FASTIDP_DB_PASSWORD"`
	LegacyName     string `envconfig:"FASTIDP_DB_NAME"`
	LegacySSLMode  string `envconfig:"FASTIDP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FASTIDP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FASTIDP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FASTIDP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FASTIDP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FASTIDP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FASTIDP_REDIS_ADDR"`
	Password     string        `envconfig:"FASTIDP_REDIS_PASSWORD"`
	DB           int           `envconfig:"FASTIDP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FASTIDP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FASTIDP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FASTIDP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FASTIDP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FASTIDP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RateLimitConfig throttles the public form endpoints.
type RateLimitConfig struct {
	ApplicationWindow     time.Duration `envconfig:"FASTIDP_RATE_LIMIT_APPLICATION_WINDOW" default:"10m"`
	ApplicationIPLimit    int           `envconfig:"FASTIDP_RATE_LIMIT_APPLICATION_IP_LIMIT" default:"10"`
	ApplicationEmailLimit int           `envconfig:"FASTIDP_RATE_LIMIT_APPLICATION_EMAIL_LIMIT" default:"5"`
	PaymentWindow         time.Duration `envconfig:"FASTIDP_RATE_LIMIT_PAYMENT_WINDOW" default:"1m"`
	PaymentIPLimit        int           `envconfig:"FASTIDP_RATE_LIMIT_PAYMENT_IP_LIMIT" default:"20"`
	ValidationWindow      time.Duration `envconfig:"FASTIDP_RATE_LIMIT_VALIDATION_WINDOW" default:"1m"`
	ValidationIPLimit     int           `envconfig:"FASTIDP_RATE_LIMIT_VALIDATION_IP_LIMIT" default:"30"`
	TrustedProxyHops      int           `envconfig:"FASTIDP_RATE_LIMIT_TRUSTED_PROXY_HOPS" default:"1"`
}

type FeatureFlagsConfig struct {
	UseSQLite           bool `envconfig:"FASTIDP_USE_SQLITE" default:"false"`
	AutoMigrate         bool `envconfig:"FASTIDP_AUTO_MIGRATE" default:"false"`
	EnableTestFixtures  bool `envconfig:"FASTIDP_ENABLE_TEST_FIXTURES" default:"false"`
	EnableLabelWorker   bool `envconfig:"FASTIDP_ENABLE_LABEL_WORKER" default:"true"`
	EnableBigQuerySink  bool `envconfig:"FASTIDP_ENABLE_BIGQUERY_SINK" default:"false"`
	EnablePubSubTrigger bool `envconfig:"FASTIDP_ENABLE_PUBSUB_TRIGGER" default:"false"`
}

// InternalAPIConfig guards the operator-only endpoints.
type InternalAPIConfig struct {
	Token string `envconfig:"FASTIDP_INTERNAL_API_TOKEN"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"FASTIDP_STRIPE_API_KEY"`
	Secret   string `envconfig:"FASTIDP_STRIPE_SECRET"`
	Env      string `envconfig:"FASTIDP_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"FASTIDP_STRIPE_CURRENCY" default:"usd"`
	// Timeout and MaxNetworkRetries tune the Stripe API backend.
	Timeout           time.Duration `envconfig:"FASTIDP_STRIPE_TIMEOUT" default:"30s"`
	MaxNetworkRetries int64         `envconfig:"FASTIDP_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
	// WebhookIdempotencyTTL bounds how long processed event ids are remembered.
	WebhookIdempotencyTTL time.Duration `envconfig:"FASTIDP_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type EasyPostConfig struct {
	APIKey  string        `envconfig:"FASTIDP_EASYPOST_API_KEY"`
	BaseURL string        `envconfig:"FASTIDP_EASYPOST_BASE_URL" default:"https://api.easypost.com/v2"`
	Timeout time.Duration `envconfig:"FASTIDP_EASYPOST_TIMEOUT" default:"20s"`

	FromName       string `envconfig:"FASTIDP_SHIP_FROM_NAME" default:"Fast IDP Fulfillment"`
	FromCompany    string `envconfig:"FASTIDP_SHIP_FROM_COMPANY" default:"Fast IDP"`
	FromStreet1    string `envconfig:"FASTIDP_SHIP_FROM_STREET1"`
	FromStreet2    string `envconfig:"FASTIDP_SHIP_FROM_STREET2"`
	FromCity       string `envconfig:"FASTIDP_SHIP_FROM_CITY"`
	FromState      string `envconfig:"FASTIDP_SHIP_FROM_STATE"`
	FromPostalCode string `envconfig:"FASTIDP_SHIP_FROM_ZIP"`
	FromCountry    string `envconfig:"FASTIDP_SHIP_FROM_COUNTRY" default:"US"`
	FromPhone      string `envconfig:"FASTIDP_SHIP_FROM_PHONE"`
	FromEmail      string `envconfig:"FASTIDP_SHIP_FROM_EMAIL"`
}

// PricingConfig carries the tunable pieces of the pricing catalog. The fee
// table itself lives with the pricing engine.
type PricingConfig struct {
	TaxRate                string   `envconfig:"FASTIDP_PRICING_TAX_RATE" default:"0.0775"`
	MinimumTotalCents      int64    `envconfig:"FASTIDP_PRICING_MINIMUM_TOTAL_CENTS" default:"50"`
	BookletFeeCents        int64    `envconfig:"FASTIDP_PRICING_BOOKLET_FEE_CENTS" default:"0"`
	UnknownSelectionPolicy string   `envconfig:"FASTIDP_PRICING_UNKNOWN_SELECTION_POLICY" default:"zero_fee"`
	AutomatedCountries     []string `envconfig:"FASTIDP_AUTOMATED_COUNTRIES" default:"CA,MX,GB,IE,FR,DE,IT,ES,PT,NL,BE,LU,CH,AT,DK,SE,NO,FI,IS,PL,CZ,GR,AU,NZ,JP,KR,SG,HK,IL,AE"`
	ProductPermitIDP1949   string   `envconfig:"FASTIDP_STRIPE_PRODUCT_IDP_1949"`
	ProductPermitIDP1926   string   `envconfig:"FASTIDP_STRIPE_PRODUCT_IDP_1926"`
	ProductProcessing      string   `envconfig:"FASTIDP_STRIPE_PRODUCT_PROCESSING"`
	ProductTax             string   `envconfig:"FASTIDP_STRIPE_PRODUCT_TAX"`
	ProductBooklet         string   `envconfig:"FASTIDP_STRIPE_PRODUCT_BOOKLET"`
}

// ShippingConfig maps processing speeds onto carrier delivery deadlines.
type ShippingConfig struct {
	StandardMaxDays int     `envconfig:"FASTIDP_SHIPPING_STANDARD_MAX_DAYS" default:"10"`
	FastMaxDays     int     `envconfig:"FASTIDP_SHIPPING_FAST_MAX_DAYS" default:"5"`
	FastestMaxDays  int     `envconfig:"FASTIDP_SHIPPING_FASTEST_MAX_DAYS" default:"3"`
	ParcelLengthIn  float64 `envconfig:"FASTIDP_SHIPPING_PARCEL_LENGTH_IN" default:"9.5"`
	ParcelWidthIn   float64 `envconfig:"FASTIDP_SHIPPING_PARCEL_WIDTH_IN" default:"6.5"`
	ParcelHeightIn  float64 `envconfig:"FASTIDP_SHIPPING_PARCEL_HEIGHT_IN" default:"0.5"`
	ParcelWeightOz  float64 `envconfig:"FASTIDP_SHIPPING_PARCEL_WEIGHT_OZ" default:"4"`
	CustomsSigner   string  `envconfig:"FASTIDP_SHIPPING_CUSTOMS_SIGNER" default:"Fast IDP"`
	CustomsValueUSD float64 `envconfig:"FASTIDP_SHIPPING_CUSTOMS_VALUE_USD" default:"20"`
	CustomsHSTariff string  `envconfig:"FASTIDP_SHIPPING_CUSTOMS_HS_TARIFF" default:"4901.99"`
	LabelBatchSize  int     `envconfig:"FASTIDP_SHIPPING_LABEL_BATCH_SIZE" default:"25"`
	LabelMinAgeMins int     `envconfig:"FASTIDP_SHIPPING_LABEL_MIN_AGE_MINUTES" default:"15"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FASTIDP_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FASTIDP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FASTIDP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"FASTIDP_GCS_BUCKET_NAME" required:"true"`
	DownloadURLExpiry time.Duration `envconfig:"FASTIDP_GCS_DOWNLOAD_URL_EXPIRY" default:"168h"`
	MaxUploadMB       int           `envconfig:"FASTIDP_MAX_UPLOAD_MB" default:"15"`
}

type PubSubConfig struct {
	ApplicationsTopic string `envconfig:"FASTIDP_PUBSUB_APPLICATIONS_TOPIC" default:"fastidp-application-events"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"FASTIDP_BIGQUERY_DATASET" default:"fastidp"`
	ApplicationsTable string `envconfig:"FASTIDP_BIGQUERY_APPLICATIONS_TABLE" default:"paid_applications"`
	// CreateTables lets the api create missing reporting tables at startup.
	CreateTables bool `envconfig:"FASTIDP_BIGQUERY_CREATE_TABLES" default:"false"`
}

// AutomationConfig points at the downstream fulfillment automation endpoint.
type AutomationConfig struct {
	WebhookURL     string        `envconfig:"FASTIDP_AUTOMATION_WEBHOOK_URL"`
	WebhookSecret  string        `envconfig:"FASTIDP_AUTOMATION_WEBHOOK_SECRET"`
	Timeout        time.Duration `envconfig:"FASTIDP_AUTOMATION_TIMEOUT" default:"10s"`
	TriggerTimeout time.Duration `envconfig:"FASTIDP_AUTOMATION_TRIGGER_TIMEOUT" default:"30s"`
}

type CronConfig struct {
	LabelInterval time.Duration `envconfig:"FASTIDP_CRON_LABEL_INTERVAL" default:"15m"`
	LockTTL       time.Duration `envconfig:"FASTIDP_CRON_LOCK_TTL" default:"14m"`
	MetricsAddr   string        `envconfig:"FASTIDP_CRON_METRICS_ADDR" default:":9102"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
