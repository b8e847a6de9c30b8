// config/config.go
package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server    ServerConfiguration
	Cache     CacheConfiguration
	Redis     RedisConfiguration
	Evaluator EvaluatorConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port string
}

// CacheConfiguration stores the L1 cache and invalidation settings
type CacheConfiguration struct {
	L1Capacity          int
	L1Shards            int
	TTL                 time.Duration
	JanitorInterval     time.Duration
	EventBufferSize     int
	BatchConcurrency    int
	WarmConcurrency     int
	FailOpenPermissions []string
	StalenessSLO        time.Duration
}

// RedisConfiguration stores data for the L2 distributed store
type RedisConfiguration struct {
	Enabled          bool
	Addr             string
	Password         string
	DB               int
	OpTimeout        time.Duration
	TTL              time.Duration
	ProbeInterval    time.Duration
	FailureThreshold int
	PoolSize         int
}

// EvaluatorConfiguration stores the authoritative evaluator endpoint
type EvaluatorConfiguration struct {
	URL     string
	Timeout time.Duration
}

var config *Configuration

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	viper.AutomaticEnv() // read in environment variables that match

	// Set default configurations
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("cache.l1Capacity", 100000)
	viper.SetDefault("cache.l1Shards", 16)
	viper.SetDefault("cache.ttl", "300s")
	viper.SetDefault("cache.janitorInterval", "1m")
	viper.SetDefault("cache.eventBufferSize", 1024)
	viper.SetDefault("cache.batchConcurrency", 8)
	viper.SetDefault("cache.warmConcurrency", 4)
	viper.SetDefault("cache.failOpenPermissions", []string{})
	viper.SetDefault("cache.stalenessSLO", "1s")
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.opTimeout", "50ms")
	viper.SetDefault("redis.ttl", "300s")
	viper.SetDefault("redis.probeInterval", "5s")
	viper.SetDefault("redis.failureThreshold", 3)
	viper.SetDefault("redis.poolSize", 10)
	viper.SetDefault("evaluator.url", "http://localhost:9090")
	viper.SetDefault("evaluator.timeout", "500ms")
	viper.SetDefault("log.file", "logging/permcache.log")

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	err := viper.Unmarshal(&config)
	if err != nil {
		return err
	}

	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration retrieves a duration value from the configuration
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStringSlice retrieves a string slice value from the configuration
func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}
