package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

var knownFlags = []string{"-a", "-g", "-d", "-s", "-vs", "-t", "-r", "-rt", "-vt", "-u", "-p", "-b", "-rg", "-e", "-k", "-kt", "-l"}

// parseFlags populates Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   gRPC health bind address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret
//	-vs string  verify-email token secret
//	-t int      access token TTL, minutes
//	-r int      refresh token TTL, days
//	-rt int     reset-password token TTL, minutes
//	-vt int     verify-email token TTL, minutes
//	-u / -p     S3 root user / password
//	-b string   S3 bucket
//	-rg string  S3 region
//	-e string   S3 base endpoint
//	-k string   comma separated Kafka brokers
//	-kt string  Kafka topic for notifications
//	-l string   log level
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC health address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")
	fs.StringVar(&config.VerifyEmailSecret, "vs", config.VerifyEmailSecret, "verify-email token secret")

	access := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access token TTL (in minutes)")
	refresh := fs.Int("r", int(config.RefreshTokenTTL.Hours()/24), "refresh token TTL (in days)")
	reset := fs.Int("rt", int(config.ResetTokenTTL.Minutes()), "reset-password token TTL (in minutes)")
	verify := fs.Int("vt", int(config.VerifyEmailTokenTTL.Minutes()), "verify-email token TTL (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "rg", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	brokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "Kafka brokers, comma separated")
	fs.StringVar(&config.KafkaTopic, "kt", config.KafkaTopic, "Kafka notifications topic")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// TTLs and brokers change only when the flag was given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenTTL = time.Duration(*access) * time.Minute
		case "r":
			config.RefreshTokenTTL = time.Duration(*refresh) * 24 * time.Hour
		case "rt":
			config.ResetTokenTTL = time.Duration(*reset) * time.Minute
		case "vt":
			config.VerifyEmailTokenTTL = time.Duration(*verify) * time.Minute
		case "k":
			config.KafkaBrokers = splitList(*brokers)
		}
	})
}
