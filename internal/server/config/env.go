package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("env %s: %w", name, err))
	}
	return n, true
}

// loadEnvFile reads the dotenv file named by -env, or ./.env when present.
// Variables already set in the process environment win.
func loadEnvFile() {
	path := flagx.EnvFileFlag()
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return
		}
		panic(err)
	}
}

// parseEnv overlays values from environment variables. Names follow the
// deployment the service replaced (JWT_*_EXPIRATION_* etc.).
func parseEnv(config *Config) {
	loadEnvFile()

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("GRPC_ADDR", &config.GRPCAddr)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("JWT_SECRET", &config.JWTSecret)
	str("USER_VERIFICATION_TOKEN_SECRET", &config.VerifyEmailSecret)
	str("JWT_ISSUER", &config.JWTIssuer)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	str("KAFKA_TOPIC", &config.KafkaTopic)
	str("LOG_LEVEL", &config.LogLevel)

	if n, ok := envInt("JWT_ACCESS_EXPIRATION_MINUTES"); ok {
		config.AccessTokenTTL = time.Duration(n) * time.Minute
	}
	if n, ok := envInt("JWT_REFRESH_EXPIRATION_DAYS"); ok {
		config.RefreshTokenTTL = time.Duration(n) * 24 * time.Hour
	}
	if n, ok := envInt("JWT_RESET_EMAIL_EXPIRATION_MINUTES"); ok {
		config.ResetTokenTTL = time.Duration(n) * time.Minute
	}
	if n, ok := envInt("JWT_VERIFY_EMAIL_EXPIRATION_MINUTES"); ok {
		config.VerifyEmailTokenTTL = time.Duration(n) * time.Minute
	}
	if n, ok := envInt("BCRYPT_COST"); ok {
		config.BcryptCost = n
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		config.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		config.KafkaBrokers = splitList(v)
	}
}
