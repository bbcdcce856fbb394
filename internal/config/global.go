package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"access-service/internal/utils/runtime"
)

const (
	kafkaHostFlag  = "kafka-host"
	kafkaPortFlag  = "kafka-port"
	mongoDBURIFlag = "mongodb-uri"

	httpPortFlag = "port"

	jwtSecretFlag = "jwt-secret"
	jwtExpiryFlag = "jwt-expiry"

	maxLoginAttemptsFlag = "max-login-attempts"
	lockDurationFlag     = "lock-duration"

	developmentFlag = "development"
)

type Config struct {
	Kafka   KafkaConfig
	MongoDB MongoDBConfig

	JWT      JWTConfig
	Security SecurityConfig

	Development bool

	HTTPPort int
}

type KafkaConfig struct {
	Host string
	Port int
}

type MongoDBConfig struct {
	URI string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type SecurityConfig struct {
	MaxLoginAttempts int
	LockDuration     time.Duration
}

func LoadGlobalConfig() Config {
	viper.SetDefault(kafkaHostFlag, "localhost")
	viper.SetDefault(kafkaPortFlag, 9092)
	viper.SetDefault(mongoDBURIFlag, "mongodb://localhost:27017")
	viper.SetDefault(httpPortFlag, 8080)
	viper.SetDefault(jwtSecretFlag, "")
	viper.SetDefault(jwtExpiryFlag, 24*time.Hour)
	viper.SetDefault(maxLoginAttemptsFlag, 5)
	viper.SetDefault(lockDurationFlag, 15*time.Minute)
	viper.SetDefault(developmentFlag, true)

	pflag.String(kafkaHostFlag, viper.GetString(kafkaHostFlag), "Kafka host")
	pflag.Int32(kafkaPortFlag, viper.GetInt32(kafkaPortFlag), "Kafka port")
	pflag.String(mongoDBURIFlag, viper.GetString(mongoDBURIFlag), "MongoDB URI")
	pflag.Int32(httpPortFlag, viper.GetInt32(httpPortFlag), "HTTP port")
	pflag.String(jwtSecretFlag, viper.GetString(jwtSecretFlag), "JWT signing secret")
	pflag.Duration(jwtExpiryFlag, viper.GetDuration(jwtExpiryFlag), "JWT lifetime")
	pflag.Int32(maxLoginAttemptsFlag, viper.GetInt32(maxLoginAttemptsFlag), "Failed logins before lockout")
	pflag.Duration(lockDurationFlag, viper.GetDuration(lockDurationFlag), "Account lock duration")
	pflag.Bool(developmentFlag, viper.GetBool(developmentFlag), "Development mode")
	pflag.Parse()

	// Bind the viper flags to environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	runtime.Must(viper.BindEnv(kafkaHostFlag))
	runtime.Must(viper.BindEnv(kafkaPortFlag))
	runtime.Must(viper.BindEnv(mongoDBURIFlag))
	runtime.Must(viper.BindEnv(httpPortFlag))
	runtime.Must(viper.BindEnv(jwtSecretFlag))
	runtime.Must(viper.BindEnv(jwtExpiryFlag))
	runtime.Must(viper.BindEnv(maxLoginAttemptsFlag))
	runtime.Must(viper.BindEnv(lockDurationFlag))
	runtime.Must(viper.BindEnv(developmentFlag))

	return Config{
		Kafka: KafkaConfig{
			Host: viper.GetString(kafkaHostFlag),
			Port: int(viper.GetInt32(kafkaPortFlag)),
		},
		MongoDB: MongoDBConfig{
			URI: viper.GetString(mongoDBURIFlag),
		},
		JWT: JWTConfig{
			Secret: viper.GetString(jwtSecretFlag),
			Expiry: viper.GetDuration(jwtExpiryFlag),
		},
		Security: SecurityConfig{
			MaxLoginAttempts: int(viper.GetInt32(maxLoginAttemptsFlag)),
			LockDuration:     viper.GetDuration(lockDurationFlag),
		},
		Development: viper.GetBool(developmentFlag),
		HTTPPort:    int(viper.GetInt32(httpPortFlag)),
	}
}
