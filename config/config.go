// Package config loads x402pay settings from the environment.
//
// Every setting is an X402PAY_* variable. An optional .env file is read first;
// variables already present in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vitwit/x402pay/pricing"
	"github.com/vitwit/x402pay/types"
)

type Config struct {
	Network   string `env:"X402PAY_NETWORK,default=base-sepolia" validate:"required"`
	Recipient string `env:"X402PAY_RECIPIENT,default=0x1f0184dc26a675008383f6c4c50CE53fB0473645" validate:"required,eth_addr"`
	// Price is the fiat price of one request in USD.
	Price string `env:"X402PAY_PRICE,default=0.01" validate:"required"`
	// Rate is the price of one native unit in USD.
	Rate     string `env:"X402PAY_RATE,default=2000" validate:"required"`
	Decimals int    `env:"X402PAY_DECIMALS,default=18" validate:"gte=0,lte=36"`

	PollInterval   time.Duration `env:"X402PAY_POLL_INTERVAL,default=1s" validate:"gt=0"`
	PollAttempts   int           `env:"X402PAY_POLL_ATTEMPTS,default=60" validate:"gte=1"`
	RequestTimeout time.Duration `env:"X402PAY_REQUEST_TIMEOUT,default=10s" validate:"gt=0"`
	FetchTimeout   time.Duration `env:"X402PAY_FETCH_TIMEOUT,default=30s" validate:"gt=0"`

	ResourceBaseURL string `env:"X402PAY_RESOURCE_BASE_URL,default=http://localhost:3001" validate:"required,url"`
	ResourcePath    string `env:"X402PAY_RESOURCE_PATH,default=/api/data" validate:"required,startswith=/"`

	// WalletRPCURL reaches an external wallet agent. PrivateKey is used for an
	// in-process wallet when no agent is configured.
	WalletRPCURL string `env:"X402PAY_WALLET_RPC_URL" validate:"omitempty,url"`
	PrivateKey   string `env:"X402PAY_PRIVATE_KEY"`
	// ChainRPCURL overrides the network's default RPC endpoint.
	ChainRPCURL string `env:"X402PAY_CHAIN_RPC_URL" validate:"omitempty,url"`

	LogLevel string `env:"X402PAY_LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`

	GateAddr string `env:"X402PAY_GATE_ADDR,default=:3001" validate:"required"`
	RedisURL string `env:"X402PAY_REDIS_URL"`
	// CORSOrigins is a comma separated list, "*" for any origin.
	CORSOrigins    string  `env:"X402PAY_CORS_ORIGINS,default=*"`
	RateLimitRPS   float64 `env:"X402PAY_RATE_LIMIT_RPS,default=10" validate:"gt=0"`
	RateLimitBurst int     `env:"X402PAY_RATE_LIMIT_BURST,default=20" validate:"gte=1"`

	price     decimal.Decimal
	converter pricing.Converter
	network   types.NetworkDescriptor
}

var validate = validator.New()

// Load reads envFile (".env" when empty, where a missing file is fine) and
// decodes the environment into a validated Config.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, configError("load .env", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, configError(fmt.Sprintf("load %s", envFile), err)
	}

	var c Config
	if err := envdecode.Decode(&c); err != nil {
		return nil, configError("decode environment", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) init() error {
	if err := validate.Struct(c); err != nil {
		return configError("invalid configuration", err)
	}

	price, err := pricing.ParsePrice(c.Price)
	if err != nil {
		return configError("X402PAY_PRICE", err)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Rate))
	if err != nil {
		return configError("X402PAY_RATE", err)
	}
	conv, err := pricing.NewConverter(rate, int32(c.Decimals))
	if err != nil {
		return configError("X402PAY_RATE", err)
	}
	network, err := types.LookupNetwork(types.Network(c.Network))
	if err != nil {
		return err
	}
	if c.ChainRPCURL != "" {
		network.RPCURLs = append([]string{c.ChainRPCURL}, network.RPCURLs...)
	}

	c.price = price
	c.converter = *conv
	c.network = network
	return nil
}

// PriceUSD is the parsed per-request price.
func (c *Config) PriceUSD() decimal.Decimal {
	return c.price
}

func (c *Config) Converter() pricing.Converter {
	return c.converter
}

// NetworkDescriptor returns the configured network, with ChainRPCURL in
// front of its default endpoints when set.
func (c *Config) NetworkDescriptor() types.NetworkDescriptor {
	return c.network
}

// ResourceURL is the full URL of the protected resource.
func (c *Config) ResourceURL() string {
	return strings.TrimSuffix(c.ResourceBaseURL, "/") + c.ResourcePath
}

func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func configError(msg string, err error) error {
	return types.NewError(types.ErrConfigError, fmt.Sprintf("%s: %v", msg, err), err)
}
