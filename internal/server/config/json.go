package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/flagx"
	"github.com/dmitrijs2005/keepershare/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept "1s"-style
// strings or integer nanoseconds. Absent keys leave the current value alone.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	PublicBaseURL    string `json:"public_base_url"`

	Storage        string `json:"storage"`
	DatabaseDSN    string `json:"database_dsn"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix"`

	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	MasterPassword              string         `json:"master_password"`
	MasterSalt                  string         `json:"master_salt"`

	BreachBaseURL     string         `json:"breach_base_url"`
	BreachTimeout     timex.Duration `json:"breach_timeout"`
	BreachMinInterval timex.Duration `json:"breach_min_interval"`
	BreachCacheTTL    timex.Duration `json:"breach_cache_ttl"`

	LinkDefaultTTL    timex.Duration `json:"link_default_ttl"`
	LinkMaxTTL        timex.Duration `json:"link_max_ttl"`
	LinkMaxViews      int            `json:"link_max_views"`
	LinkSweepInterval timex.Duration `json:"link_sweep_interval"`

	HTTPRateLimit      float64  `json:"http_rate_limit"`
	HTTPRateBurst      int      `json:"http_rate_burst"`
	HTTPTrustedProxies []string `json:"http_trusted_proxies"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson loads the file named by -c/-config (or $KEEPER_CONFIG) on top of
// config. It panics on unreadable files or invalid JSON.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.applyTo(config)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.PublicBaseURL, c.PublicBaseURL)

	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3Prefix, c.S3Prefix)

	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.MasterPassword, c.MasterPassword)
	setString(&config.MasterSalt, c.MasterSalt)

	setString(&config.BreachBaseURL, c.BreachBaseURL)
	setDuration(&config.BreachTimeout, c.BreachTimeout)
	setDuration(&config.BreachMinInterval, c.BreachMinInterval)
	setDuration(&config.BreachCacheTTL, c.BreachCacheTTL)

	setDuration(&config.LinkDefaultTTL, c.LinkDefaultTTL)
	setDuration(&config.LinkMaxTTL, c.LinkMaxTTL)
	if c.LinkMaxViews != 0 {
		config.LinkMaxViews = c.LinkMaxViews
	}
	setDuration(&config.LinkSweepInterval, c.LinkSweepInterval)

	if c.HTTPRateLimit != 0 {
		config.HTTPRateLimit = c.HTTPRateLimit
	}
	if c.HTTPRateBurst != 0 {
		config.HTTPRateBurst = c.HTTPRateBurst
	}
	if len(c.HTTPTrustedProxies) > 0 {
		config.HTTPTrustedProxies = c.HTTPTrustedProxies
	}

	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}
