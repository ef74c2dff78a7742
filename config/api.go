package config

// ApiConfig is the full configuration surface for cmd/api and every
// cmd/worker/* binary: database.{host,port,user,password,db,ssl_mode,...},
// redis.{host,port,password,db}, lnd.{grpc_host,grpc_port,cert_path,
// macaroon_path,network,first_block,*_timeout_s},
// limits.{payment,invoice}_{min,max,daily}_sats, and
// rate_limit.{limit,span_s,use_redis}, loaded by cleanenv from config.toml
// with environment variable overrides.
type ApiConfig struct {
	Database struct {
		Host            string `toml:"host" env:"LNLEDGER_DB_HOST"`
		Port            string `toml:"port" env:"LNLEDGER_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"LNLEDGER_DB_USER"`
		Password        string `toml:"password" env:"LNLEDGER_DB_PASSWORD"`
		DB              string `toml:"db" env:"LNLEDGER_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"LNLEDGER_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"LNLEDGER_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"LNLEDGER_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"LNLEDGER_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"LNLEDGER_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"LNLEDGER_REDIS_HOST"`
		Port     string `toml:"port" env:"LNLEDGER_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"LNLEDGER_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"LNLEDGER_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	LND struct {
		GRPCHost      string `toml:"grpc_host" env:"LNLEDGER_LND_GRPC_HOST" env-default:"localhost"`
		GRPCPort      string `toml:"grpc_port" env:"LNLEDGER_LND_GRPC_PORT" env-default:"10009"`
		TLSCertPath   string `toml:"cert_path" env:"LNLEDGER_LND_CERT_PATH"`
		MacaroonPath  string `toml:"macaroon_path" env:"LNLEDGER_LND_MACAROON_PATH"`
		Network       string `toml:"network" env:"LNLEDGER_LND_NETWORK" env-default:"mainnet"`
		FirstBlock    int64  `toml:"first_block" env:"LNLEDGER_LND_FIRST_BLOCK" env-default:"0"`
		RPCTimeoutS   int    `toml:"rpc_timeout_s" env:"LNLEDGER_LND_RPC_TIMEOUT_S" env-default:"20"`
		SendTimeoutS  int    `toml:"send_timeout_s" env:"LNLEDGER_LND_SEND_TIMEOUT_S" env-default:"20"`
		ProbeTimeoutS int    `toml:"probe_timeout_s" env:"LNLEDGER_LND_PROBE_TIMEOUT_S" env-default:"30"`
	} `toml:"lnd"`

	Limits struct {
		PaymentMinSats   int64 `toml:"payment_min_sats" env:"LNLEDGER_LIMITS_PAYMENT_MIN_SATS" env-default:"1"`
		PaymentMaxSats   int64 `toml:"payment_max_sats" env:"LNLEDGER_LIMITS_PAYMENT_MAX_SATS" env-default:"10000000"`
		PaymentDailySats int64 `toml:"payment_daily_sats" env:"LNLEDGER_LIMITS_PAYMENT_DAILY_SATS" env-default:"50000000"`
		InvoiceMinSats   int64 `toml:"invoice_min_sats" env:"LNLEDGER_LIMITS_INVOICE_MIN_SATS" env-default:"1"`
		InvoiceMaxSats   int64 `toml:"invoice_max_sats" env:"LNLEDGER_LIMITS_INVOICE_MAX_SATS" env-default:"10000000"`
		InvoiceDailySats int64 `toml:"invoice_daily_sats" env:"LNLEDGER_LIMITS_INVOICE_DAILY_SATS" env-default:"50000000"`
	} `toml:"limits"`

	RateLimit struct {
		Limit    int  `toml:"limit" env:"LNLEDGER_RATE_LIMIT_LIMIT" env-default:"100"`
		SpanS    int  `toml:"span_s" env:"LNLEDGER_RATE_LIMIT_SPAN_S" env-default:"60"`
		UseRedis bool `toml:"use_redis" env:"LNLEDGER_RATE_LIMIT_USE_REDIS" env-default:"false"`
	} `toml:"rate_limit"`
}
