package configuration

import (
	"fmt"
	"strings"

	"github.com/Scusemua/go-utils/config"
	"github.com/goccy/go-json"
)

const (
	DefaultPort           = 8085
	DefaultPrometheusPort = 8089
	DefaultRedisPort      = 6379

	DefaultLeaseSeconds        = 1800
	DefaultQueueCapacity       = 50
	DefaultQuarantineThreshold = 3
	DefaultMatchingTickSeconds = 5
	DefaultMaxLockRetries      = 3
	DefaultRetryBackoffMillis  = 250

	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"

	StrategyFirstAvailable = "first-available"
	StrategyLeastUsed      = "least-used"
	StrategyRandom         = "random"
)

// BoardfarmOptions is the full configuration of the board lease manager
// daemon, populated from command-line flags and/or a YAML config file via
// config.ValidateOptions.
type BoardfarmOptions struct {
	config.LoggerOptions `yaml:",inline" json:"logger_options"`

	BoardsConfigPath string `name:"boards-config" description:"Path to the boards.yaml inventory file." yaml:"boards-config" json:"boards-config"`
	LockBackend      string `name:"lock-backend" description:"Lock backend to use. Options are 'redis' and 'memory'." yaml:"lock-backend" json:"lock-backend"`
	RedisAddr        string `name:"redis-addr" description:"Hostname and port of the Redis server backing the distributed locks." yaml:"redis-addr" json:"redis-addr"`
	RedisPassword    string `name:"redis-password" description:"Password to access Redis." yaml:"redis-password" json:"redis-password"`
	ConsulAddr       string `name:"consul" description:"Consul agent address. Service registration is skipped when empty." yaml:"consul" json:"consul"`
	Strategy         string `name:"allocation-strategy" description:"Board allocation strategy. Options are 'first-available', 'least-used', and 'random'." yaml:"allocation-strategy" json:"allocation-strategy"`

	Port           int `name:"port" description:"Port that the HTTP API listens on." yaml:"port" json:"port"`
	PrometheusPort int `name:"prometheus_port" description:"Port on which Prometheus metrics are served." yaml:"prometheus_port" json:"prometheus_port"`
	DebugPort      int `name:"debug_port" description:"Port for the debug/pprof HTTP server." yaml:"debug_port" json:"debug_port"`
	RedisDatabase  int `name:"redis-database" description:"Redis database number to use for locks and lease records." yaml:"redis-database" json:"redis-database"`

	DefaultLeaseSeconds int `name:"default-lease-seconds" description:"Default lease duration, in seconds, when the submission does not specify one." yaml:"default-lease-seconds" json:"default-lease-seconds"`
	QueueCapacity       int `name:"queue-capacity" description:"Maximum number of pending lease requests across all families." yaml:"queue-capacity" json:"queue-capacity"`
	QuarantineThreshold int `name:"quarantine-threshold" description:"Number of same-day failures after which a board is quarantined." yaml:"quarantine-threshold" json:"quarantine-threshold"`
	MatchingTickSeconds int `name:"matching-tick-seconds" description:"Fallback interval, in seconds, between matching passes and expiry sweeps." yaml:"matching-tick-seconds" json:"matching-tick-seconds"`
	MaxLockRetries      int `name:"max-lock-retries" description:"Number of times a transient lock backend error is retried before the request is left queued for the next tick." yaml:"max-lock-retries" json:"max-lock-retries"`
	RetryBackoffMillis  int `name:"retry-backoff-millis" description:"Base backoff, in milliseconds, between lock acquisition retries. Grows linearly per attempt." yaml:"retry-backoff-millis" json:"retry-backoff-millis"`

	DebugMode                    bool `name:"debug_mode" description:"Enable the debug/pprof HTTP server." yaml:"debug_mode" json:"debug_mode"`
	ClearQuarantineOnDayRollover bool `name:"clear-quarantine-on-rollover" description:"If true, the daily failure-counter reset also clears quarantine. By default quarantine is sticky until manually cleared." yaml:"clear-quarantine-on-rollover" json:"clear-quarantine-on-rollover"`
	PrettyPrintOptions           bool `name:"pretty_print_options" description:"Pretty-print the options struct at startup." yaml:"pretty_print_options" json:"pretty_print_options"`
}

func (o *BoardfarmOptions) Validate() error {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}

	if o.PrometheusPort <= 0 {
		o.PrometheusPort = DefaultPrometheusPort
	}

	if o.LockBackend == "" {
		fmt.Printf("[WARNING] \"lock-backend\" configuration is not set. Using default value: \"%s\".\n",
			LockBackendRedis)
		o.LockBackend = LockBackendRedis
	}

	if o.LockBackend != LockBackendRedis && o.LockBackend != LockBackendMemory {
		return fmt.Errorf("unknown lock backend \"%s\"", o.LockBackend)
	}

	if o.LockBackend == LockBackendRedis && o.RedisAddr == "" {
		o.RedisAddr = fmt.Sprintf("localhost:%d", DefaultRedisPort)
	}

	if o.Strategy == "" {
		o.Strategy = StrategyFirstAvailable
	}

	if o.DefaultLeaseSeconds <= 0 {
		o.DefaultLeaseSeconds = DefaultLeaseSeconds
	}

	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}

	if o.QuarantineThreshold <= 0 {
		o.QuarantineThreshold = DefaultQuarantineThreshold
	}

	if o.MatchingTickSeconds <= 0 {
		o.MatchingTickSeconds = DefaultMatchingTickSeconds
	}

	if o.MaxLockRetries <= 0 {
		o.MaxLockRetries = DefaultMaxLockRetries
	}

	if o.RetryBackoffMillis <= 0 {
		o.RetryBackoffMillis = DefaultRetryBackoffMillis
	}

	return nil
}

// PrettyString is the same as String, except that PrettyString calls
// json.MarshalIndent instead of json.Marshal.
func (o *BoardfarmOptions) PrettyString(indentSize int) string {
	indentBuilder := strings.Builder{}
	for i := 0; i < indentSize; i++ {
		indentBuilder.WriteString(" ")
	}

	m, err := json.MarshalIndent(o, "", indentBuilder.String())
	if err != nil {
		panic(err)
	}

	return string(m)
}

func (o *BoardfarmOptions) String() string {
	m, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}

	return string(m)
}
