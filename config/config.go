package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BearBump/ShipBox/internal/logger"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Carrier     CarrierConfig     `yaml:"carrier"`
	Links       LinksConfig       `yaml:"links"`
	LeadTime    LeadTimeConfig    `yaml:"lead_time"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	SMS         SMSConfig         `yaml:"sms"`
	Shortener   ShortenerConfig   `yaml:"shortener"`
	Geocoder    GeocoderConfig    `yaml:"geocoder"`
	Reminders   RemindersConfig   `yaml:"reminders"`
	ShipBox     ShipBoxConfig     `yaml:"shipbox"`
	Logging     logger.Config     `yaml:"logging"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                         string `yaml:"host"`
	Port                         int    `yaml:"port"`
	TransactionAcceptedTopicName string `yaml:"transaction_accepted_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Enabled switches dedup, geo cache and rate limiting to Redis; otherwise in-process.
	Enabled bool `yaml:"enabled"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type MarketplaceConfig struct {
	Driver         string `yaml:"driver"` // memory | postgres | http
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CarrierConfig struct {
	Driver             string   `yaml:"driver"` // shippo | fake
	BaseURL            string   `yaml:"base_url"`
	Token              string   `yaml:"token"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	ProviderPreference []string `yaml:"provider_preference"`
	QRCarriers         []string `yaml:"qr_carriers"`
	LabelFileType      string   `yaml:"label_file_type"`
	ReturnLabels       bool     `yaml:"return_labels"`
}

type LinksConfig struct {
	// Preferences maps a lower-case carrier (or "default") to an ordered list of qr|label|tracking.
	Preferences   map[string][]string `yaml:"preferences"`
	AllowTracking bool                `yaml:"allow_tracking"`
}

type LeadTimeConfig struct {
	Mode       string `yaml:"mode"` // static | distance
	// StaticDays is a pointer so that an explicit 0 (ship on the booking date) survives defaults.
	StaticDays *int   `yaml:"static_days"`
	MaxDays    int    `yaml:"max_days"`
	Timezone   string `yaml:"timezone"`
}

// LeadDays is the static lead time in days; call after ApplyDefaults.
func (l LeadTimeConfig) LeadDays() int {
	if l.StaticDays == nil {
		return 2
	}
	return *l.StaticDays
}

type WebhookConfig struct {
	Secret    string `yaml:"secret"`
	Mode      string `yaml:"mode"` // live | test
	ScanLimit int    `yaml:"scan_limit"`
}

type SMSConfig struct {
	DryRun         bool   `yaml:"dry_run"`
	BaseURL        string `yaml:"base_url"`
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DedupTTLHours  int    `yaml:"dedup_ttl_hours"`
}

type ShortenerConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type GeocoderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheTTLHours     int     `yaml:"cache_ttl_hours"`
}

type RemindersConfig struct {
	Enabled            bool `yaml:"enabled"`
	IntervalSeconds    int  `yaml:"interval_seconds"`
	ScanLimit          int  `yaml:"scan_limit"`
	Concurrency        int  `yaml:"concurrency"`
	RateLimitPerMinute int  `yaml:"rate_limit_per_minute"`
	MorningHour        int  `yaml:"morning_hour"`
}

type ShipBoxConfig struct {
	GRPCAddr           string `yaml:"grpc_addr"`
	HTTPAddr           string `yaml:"http_addr"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
}

func LoadConfig(filename string) (*Config, error) {
	// .env рядом с бинарником не обязателен
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	return &config, nil
}

func (c *Config) ApplyDefaults() {
	if c.Kafka.TransactionAcceptedTopicName == "" {
		c.Kafka.TransactionAcceptedTopicName = "transaction.accepted"
	}
	if c.Marketplace.Driver == "" {
		c.Marketplace.Driver = "memory"
	}
	if c.Marketplace.TimeoutSeconds <= 0 {
		c.Marketplace.TimeoutSeconds = 10
	}
	if c.Carrier.Driver == "" {
		c.Carrier.Driver = "fake"
	}
	if c.Carrier.TimeoutSeconds <= 0 {
		c.Carrier.TimeoutSeconds = 20
	}
	if len(c.Carrier.ProviderPreference) == 0 {
		c.Carrier.ProviderPreference = []string{"USPS", "UPS"}
	}
	if c.Carrier.QRCarriers == nil {
		c.Carrier.QRCarriers = []string{"USPS"}
	}
	if c.Carrier.LabelFileType == "" {
		c.Carrier.LabelFileType = "PDF_4x6"
	}
	if c.LeadTime.Mode == "" {
		c.LeadTime.Mode = "static"
	}
	if c.LeadTime.StaticDays == nil || *c.LeadTime.StaticDays < 0 {
		days := 2
		c.LeadTime.StaticDays = &days
	}
	if c.LeadTime.MaxDays <= 0 {
		c.LeadTime.MaxDays = 5
	}
	if c.LeadTime.Timezone == "" {
		c.LeadTime.Timezone = "America/Chicago"
	}
	if c.Webhook.Mode == "" {
		c.Webhook.Mode = "live"
	}
	if c.Webhook.ScanLimit <= 0 {
		c.Webhook.ScanLimit = 200
	}
	if c.SMS.TimeoutSeconds <= 0 {
		c.SMS.TimeoutSeconds = 10
	}
	if c.SMS.DedupTTLHours <= 0 {
		c.SMS.DedupTTLHours = 24
	}
	if c.Shortener.TimeoutSeconds <= 0 {
		c.Shortener.TimeoutSeconds = 3
	}
	if c.Geocoder.TimeoutSeconds <= 0 {
		c.Geocoder.TimeoutSeconds = 5
	}
	if c.Geocoder.RequestsPerSecond <= 0 {
		c.Geocoder.RequestsPerSecond = 10
	}
	if c.Geocoder.CacheTTLHours <= 0 {
		c.Geocoder.CacheTTLHours = 24 * 30
	}
	if c.Reminders.IntervalSeconds <= 0 {
		c.Reminders.IntervalSeconds = 300
	}
	if c.Reminders.ScanLimit <= 0 {
		c.Reminders.ScanLimit = 500
	}
	if c.Reminders.Concurrency <= 0 {
		c.Reminders.Concurrency = 4
	}
	if c.Reminders.RateLimitPerMinute <= 0 {
		c.Reminders.RateLimitPerMinute = 60
	}
	if c.Reminders.MorningHour <= 0 {
		c.Reminders.MorningHour = 8
	}
	if c.ShipBox.GRPCAddr == "" {
		c.ShipBox.GRPCAddr = ":50051"
	}
	if c.ShipBox.HTTPAddr == "" {
		c.ShipBox.HTTPAddr = ":8080"
	}
	if c.ShipBox.WorkerHTTPAddr == "" {
		c.ShipBox.WorkerHTTPAddr = ":8081"
	}
	if c.ShipBox.KafkaConsumerGroup == "" {
		c.ShipBox.KafkaConsumerGroup = "ship-worker"
	}
	c.Logging.SetDefaults()
}

// applyEnv overrides secrets and toggles from SHIPBOX_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v)
		}
	}
	var bad []string
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				bad = append(bad, key)
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				bad = append(bad, key)
				return
			}
			*dst = n
		}
	}

	str("SHIPBOX_DB_PASSWORD", &c.Database.Password)
	integer("SHIPBOX_DB_MAX_CONNS", &c.Database.MaxConns)
	str("SHIPBOX_MARKETPLACE_DRIVER", &c.Marketplace.Driver)
	str("SHIPBOX_MARKETPLACE_TOKEN", &c.Marketplace.Token)
	str("SHIPBOX_CARRIER_DRIVER", &c.Carrier.Driver)
	str("SHIPBOX_CARRIER_TOKEN", &c.Carrier.Token)
	list("SHIPBOX_PROVIDER_PREFERENCE", &c.Carrier.ProviderPreference)
	list("SHIPBOX_QR_CARRIERS", &c.Carrier.QRCarriers)
	boolean("SHIPBOX_RETURN_LABELS", &c.Carrier.ReturnLabels)
	boolean("SHIPBOX_ALLOW_TRACKING", &c.Links.AllowTracking)
	str("SHIPBOX_LEAD_MODE", &c.LeadTime.Mode)
	if v, ok := lookup("SHIPBOX_LEAD_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.LeadTime.StaticDays = &n
		} else {
			bad = append(bad, "SHIPBOX_LEAD_DAYS")
		}
	}
	integer("SHIPBOX_LEAD_MAX_DAYS", &c.LeadTime.MaxDays)
	str("SHIPBOX_WEBHOOK_SECRET", &c.Webhook.Secret)
	str("SHIPBOX_WEBHOOK_MODE", &c.Webhook.Mode)
	boolean("SHIPBOX_SMS_DRY_RUN", &c.SMS.DryRun)
	str("SHIPBOX_SMS_ACCOUNT_SID", &c.SMS.AccountSID)
	str("SHIPBOX_SMS_AUTH_TOKEN", &c.SMS.AuthToken)
	str("SHIPBOX_SHORTENER_TOKEN", &c.Shortener.Token)
	str("SHIPBOX_GEOCODER_API_KEY", &c.Geocoder.APIKey)
	str("SHIPBOX_LOG_LEVEL", &c.Logging.Level)

	// SHIPBOX_LINK_PREF_USPS=qr,label,tracking
	for _, carrier := range []string{"USPS", "UPS", "FEDEX", "DEFAULT"} {
		if v, ok := lookup("SHIPBOX_LINK_PREF_" + carrier); ok {
			if c.Links.Preferences == nil {
				c.Links.Preferences = map[string][]string{}
			}
			c.Links.Preferences[strings.ToLower(carrier)] = splitList(v)
		}
	}

	if len(bad) > 0 {
		return fmt.Errorf("invalid env values: %s", strings.Join(bad, ", "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
