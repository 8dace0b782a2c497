// Package config loads tenantd configuration from environment variables.
//
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
//
// Server settings:
//
//	TENANTD_HOST="0.0.0.0"
//	TENANTD_PORT="8080"
//	TENANTD_PUBLIC_URL="http://localhost:8080"   # base URL peers call
//	TENANTD_SHUTDOWN_TIMEOUT="30s"
//
// Tenant storage:
//
//	TENANTD_DATA_DIR="./data"                  # empty selects in-memory stores
//	TENANTD_MAX_ACTORS="1024"
//	TENANTD_ACTOR_IDLE_TIMEOUT="15m"
//	TENANTD_IDLE_SWEEP_SCHEDULE="@every 1m"    # robfig/cron schedule
//
// Authentication:
//
//	AUTH_ISSUER_URL="https://clerk.example.com"  # required
//	AUTH_VERIFY_TIMEOUT="5s"
//	INTERNAL_TOKEN_SECRET=""                   # or INTERNAL_TOKEN_SECRET_FILE
//
// Billing:
//
//	STRIPE_SECRET_KEY=""                       # billing disabled when empty
//	BILLING_PRICE_TIERS="price_a=STANDARD,price_b=ENTERPRISE"
//	BILLING_PRICE_TIERS_FILE="tiers.yaml"      # YAML map, merged under the env value
//	APP_URL="http://localhost:5173"            # billing portal return URL
//	REDIS_URL=""                               # shared plan cache when set
//
// Directory lookups:
//
//	DIRECTORY_API_URL="https://api.clerk.com/v1"
//	DIRECTORY_SECRET_KEY=""
//
// Observability:
//
//	LOG_LEVEL="info"
//	LOG_FORMAT="json"                          # or text
//	TENANTD_OTEL_ENABLED="false"
//	TENANTD_OTEL_ENDPOINT="localhost:4317"
package config
