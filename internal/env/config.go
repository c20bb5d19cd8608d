package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	DebugHTTP bool   `env:"MARKETDASH_DEBUG_HTTP"`
	LogLevel  string `env:"MARKETDASH_LOG_LEVEL,default=info"`

	SocketHost      string `env:"MARKETDASH_SOCKET_HOST,default=s-usc1a-nss-2040.firebaseio.com"`
	ProtocolVersion string `env:"MARKETDASH_PROTOCOL_VERSION,default=5"`
	Namespace       string `env:"MARKETDASH_NAMESPACE,default=pq-dev"`
	ClientUnit      string `env:"MARKETDASH_CLIENT_UNIT,default=compassdk_danskebank"`

	QueryTimeout time.Duration `env:"MARKETDASH_QUERY_TIMEOUT,default=5s"`
	CacheTTL     time.Duration `env:"MARKETDASH_CACHE_TTL,default=5m"`

	TimeslotsURL string   `env:"MARKETDASH_TIMESLOTS_URL,default=https://payments2-jaonrqeeaq-ew.a.run.app/v1/orders/timeslots"`
	CORSOrigins  []string `env:"MARKETDASH_CORS_ORIGINS,default=*"`
	StaticDir    string   `env:"MARKETDASH_STATIC_DIR,default=../front-end"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
