// config/config.go
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// --- Sub-structs mirroring the YAML layout ---

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // mongo | memory
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type FabricConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ChannelName       string `mapstructure:"channelName"`
	ChaincodeName     string `mapstructure:"chaincodeName"`
	OrgName           string `mapstructure:"orgName"`
	UserName          string `mapstructure:"userName"`
	ConnectionProfile string `mapstructure:"connectionProfile"`
	UserCertPath      string `mapstructure:"userCertPath"`
	UserKeyDir        string `mapstructure:"userKeyDir"`
	WalletPath        string `mapstructure:"walletPath"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

type PIIConfig struct {
	Secret string `mapstructure:"secret"`
}

type LedgerConfig struct {
	Mode string `mapstructure:"mode"` // outbox | sync
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
	BatchSize    int           `mapstructure:"batchSize"`
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	BaseBackoff  time.Duration `mapstructure:"baseBackoff"`
}

type SeedConfig struct {
	ManagerEmail    string `mapstructure:"managerEmail"`
	ManagerPassword string `mapstructure:"managerPassword"`
}

// --- Root config ---

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Fabric  FabricConfig  `mapstructure:"fabric"`
	S3      S3Config      `mapstructure:"s3"`
	PII     PIIConfig     `mapstructure:"pii"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Outbox  OutboxConfig  `mapstructure:"outbox"`
	Seed    SeedConfig    `mapstructure:"seed"`
}

const (
	LedgerModeOutbox = "outbox"
	LedgerModeSync   = "sync"

	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("storage.driver", StorageMongo)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.dbName", "property_delivery")
	v.SetDefault("jwt.expiration", 24*time.Hour)
	v.SetDefault("fabric.walletPath", "wallet")
	v.SetDefault("ledger.mode", LedgerModeOutbox)
	v.SetDefault("outbox.pollInterval", 2*time.Second)
	v.SetDefault("outbox.batchSize", 20)
	v.SetDefault("outbox.maxAttempts", 8)
	v.SetDefault("outbox.baseBackoff", 5*time.Second)
	v.SetDefault("seed.managerEmail", "manager@example.com")
}

// LoadConfig reads config.yaml from path and overrides it with environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (config Config, err error) {
	if envErr := godotenv.Load(); envErr != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AutomaticEnv()
	// "mongo.uri" in YAML maps to MONGO_URI and so on.
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("mongo.uri", "MONGO_URI")
	v.BindEnv("mongo.dbName", "MONGO_DBNAME")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	v.BindEnv("fabric.enabled", "FABRIC_ENABLED")
	v.BindEnv("fabric.connectionProfile", "FABRIC_CONNECTION_PROFILE")
	v.BindEnv("fabric.userCertPath", "FABRIC_USER_CERT_PATH")
	v.BindEnv("fabric.userKeyDir", "FABRIC_USER_KEY_DIR")
	v.BindEnv("s3.bucket", "S3_BUCKET")
	v.BindEnv("s3.region", "S3_REGION")
	v.BindEnv("s3.accessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("s3.secretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("s3.cloudFrontDomain", "S3_CLOUDFRONT_DOMAIN")
	v.BindEnv("pii.secret", "PII_SECRET")
	v.BindEnv("ledger.mode", "LEDGER_MODE")
	v.BindEnv("seed.managerPassword", "SEED_MANAGER_PASSWORD")

	// Missing config.yaml is fine, env vars and defaults still apply.
	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.PII.Secret == "" {
		return fmt.Errorf("pii.secret is required")
	}
	switch c.Storage.Driver {
	case StorageMongo, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Ledger.Mode {
	case LedgerModeOutbox, LedgerModeSync:
	default:
		return fmt.Errorf("unknown ledger mode %q", c.Ledger.Mode)
	}
	if c.Fabric.Enabled && c.Fabric.ConnectionProfile == "" {
		return fmt.Errorf("fabric.connectionProfile is required when fabric is enabled")
	}
	return nil
}
