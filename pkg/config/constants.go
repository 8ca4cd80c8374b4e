package config

const (
	EnvPrefix = "FASTIDP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "FASTIDP_APP_ENV"
	EnvPort     = "FASTIDP_APP_PORT"
	EnvLogLevel = "FASTIDP_LOG_LEVEL"

	EnvDBDSN  = "FASTIDP_DB_DSN"
	EnvDBHost = "FASTIDP_DB_HOST"
	EnvDBUser = "FASTIDP_DB_USER"
	EnvDBName = "FASTIDP_DB_NAME"

	EnvRedisURL = "FASTIDP_REDIS_URL"

	EnvGCPProjectID = "FASTIDP_GCP_PROJECT_ID"
	EnvGCSBucket    = "FASTIDP_GCS_BUCKET_NAME"

	EnvStripeAPIKey = "FASTIDP_STRIPE_API_KEY"
	EnvStripeSecret = "FASTIDP_STRIPE_SECRET"

	EnvPricingTaxRate         = "FASTIDP_PRICING_TAX_RATE"
	EnvPricingUnknownPolicy   = "FASTIDP_PRICING_UNKNOWN_SELECTION_POLICY"
	EnvAutomatedCountries     = "FASTIDP_AUTOMATED_COUNTRIES"
	EnvEnableTestFixtures     = "FASTIDP_ENABLE_TEST_FIXTURES"
	EnvAutomationWebhookURL   = "FASTIDP_AUTOMATION_WEBHOOK_URL"
	EnvShippingFastestMaxDays = "FASTIDP_SHIPPING_FASTEST_MAX_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
