package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds hunt-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	AnthropicAPIKey string
	AnthropicModel  string

	IntelFeedURL        string
	IntelFeedToken      string
	IntelTTLSeconds     int
	DedupTTLSeconds     int
	ExtraSourceURL      string
	OpenSearchURL       string
	OpenSearchUsername  string
	OpenSearchPassword  string
	OpenSearchInsecure  bool
	SOARURL             string
	SOARToken           string
	SOARAction          string
	SlackWebhookURL     string
	QueryRowLimit       int
	RescoreTopN         int
	StageFanout         int
	RetryAttempts       int
	RetryBaseDelayMs    int
	MaxBatch            int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.AnthropicAPIKey, "anthropic-api-key", "", "API key for narrative generation (empty = offline placeholder text)")
	fs.StringVar(&c.AnthropicModel, "anthropic-model", "claude-sonnet-4-20250514", "Anthropic model for narrative generation")
	fs.StringVar(&c.IntelFeedURL, "intel-feed-url", "", "threat-intel feed URL (empty = no enrichment)")
	fs.StringVar(&c.IntelFeedToken, "intel-feed-token", "", "bearer token for the threat-intel feed")
	fs.IntVar(&c.IntelTTLSeconds, "intel-ttl-seconds", 300, "threat-intel feed cache TTL in seconds (1..86400)")
	fs.IntVar(&c.DedupTTLSeconds, "dedup-ttl-seconds", 300, "event dedup window in seconds (1..86400)")
	fs.StringVar(&c.ExtraSourceURL, "extra-source-url", "", "optional extra raw event source polled by the collector")
	fs.StringVar(&c.OpenSearchURL, "opensearch-url", "", "OpenSearch endpoint for detection queries (empty = raw-event inspection only)")
	fs.StringVar(&c.OpenSearchUsername, "opensearch-username", "", "OpenSearch basic-auth username")
	fs.StringVar(&c.OpenSearchPassword, "opensearch-password", "", "OpenSearch basic-auth password")
	fs.BoolVar(&c.OpenSearchInsecure, "opensearch-insecure", false, "skip OpenSearch TLS verification (dev only)")
	fs.StringVar(&c.SOARURL, "soar-url", "", "SOAR endpoint for response actions (empty = actions disabled)")
	fs.StringVar(&c.SOARToken, "soar-token", "", "bearer token for the SOAR endpoint")
	fs.StringVar(&c.SOARAction, "soar-action", "isolate_host", "SOAR action invoked per correlated incident")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.IntVar(&c.QueryRowLimit, "query-row-limit", 1000, "row cap substituted into detection queries (1..100000)")
	fs.IntVar(&c.RescoreTopN, "rescore-top-n", 3, "number of top alerts re-scored via risk assessment (0..100)")
	fs.IntVar(&c.StageFanout, "stage-fanout", 8, "concurrency bound for per-stage fan-out (1..128)")
	fs.IntVar(&c.RetryAttempts, "retry-attempts", 3, "attempts for retried collaborator calls (1..10)")
	fs.IntVar(&c.RetryBaseDelayMs, "retry-base-delay-ms", 200, "initial backoff delay in milliseconds (1..60000)")
	fs.IntVar(&c.MaxBatch, "max-batch", 500, "maximum events accepted into one run (1..100000)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.AnthropicModel == "" {
		errs = append(errs, errors.New("ANTHROPIC_MODEL is required"))
	}

	if c.IntelTTLSeconds <= 0 || c.IntelTTLSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid INTEL_TTL_SECONDS %d (must be 1..86400)", c.IntelTTLSeconds))
	}
	if c.DedupTTLSeconds <= 0 || c.DedupTTLSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_TTL_SECONDS %d (must be 1..86400)", c.DedupTTLSeconds))
	}

	if c.QueryRowLimit <= 0 || c.QueryRowLimit > 100000 {
		errs = append(errs, fmt.Errorf("invalid QUERY_ROW_LIMIT %d (must be 1..100000)", c.QueryRowLimit))
	}
	if c.RescoreTopN < 0 || c.RescoreTopN > 100 {
		errs = append(errs, fmt.Errorf("invalid RESCORE_TOP_N %d (must be 0..100)", c.RescoreTopN))
	}
	if c.StageFanout <= 0 || c.StageFanout > 128 {
		errs = append(errs, fmt.Errorf("invalid STAGE_FANOUT %d (must be 1..128)", c.StageFanout))
	}
	if c.RetryAttempts <= 0 || c.RetryAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid RETRY_ATTEMPTS %d (must be 1..10)", c.RetryAttempts))
	}
	if c.RetryBaseDelayMs <= 0 || c.RetryBaseDelayMs > 60000 {
		errs = append(errs, fmt.Errorf("invalid RETRY_BASE_DELAY_MS %d (must be 1..60000)", c.RetryBaseDelayMs))
	}
	if c.MaxBatch <= 0 || c.MaxBatch > 100000 {
		errs = append(errs, fmt.Errorf("invalid MAX_BATCH %d (must be 1..100000)", c.MaxBatch))
	}

	// SOAR action must be named when a SOAR endpoint is configured
	if c.SOARURL != "" && c.SOARAction == "" {
		errs = append(errs, errors.New("SOAR_ACTION is required when SOAR_URL is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
