package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr     string
	GinMode     string
	DatabaseDSN string
	RedisAddr   string
	JWTSecret   string
	QRSecret    string
	CORSOrigins []string

	// TaxRate is the ITBMS rate applied on top of the trip fare.
	TaxRate float64
	// AssignmentGraceDays is how far in the past a service date may still be assigned.
	AssignmentGraceDays int
	// PendingHoldTimeout bounds how long an unpaid ticket keeps its seat.
	PendingHoldTimeout time.Duration
	// GenerateAheadDays is how many days ahead the nightly job materializes trips.
	GenerateAheadDays int
	Timezone          *time.Location
}

// DefaultQRSecret is used when QR_SECRET is unset. Anyone who knows it can
// mint valid ticket QR codes.
const DefaultQRSecret = "change-me"

// InsecureQRSecret reports whether QR codes are signed with DefaultQRSecret.
func (e Env) InsecureQRSecret() bool {
	return e.QRSecret == "" || e.QRSecret == DefaultQRSecret
}

// LoadEnv reads .env (when present) and the process environment.
func LoadEnv() Env {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to read .env: %v", err)
	}

	env := Env{
		AppAddr:             getString("APP_ADDR", ":8080"),
		GinMode:             getString("GIN_MODE", ""),
		DatabaseDSN:         getString("DB_DSN", ""),
		RedisAddr:           getString("REDIS_ADDR", ""),
		JWTSecret:           getString("JWT_SECRET", ""),
		QRSecret:            getString("QR_SECRET", DefaultQRSecret),
		TaxRate:             getFloat("ITBMS_RATE", 0.07),
		AssignmentGraceDays: getInt("ASSIGNMENT_GRACE_DAYS", 0),
		PendingHoldTimeout:  getDuration("PENDING_HOLD_TIMEOUT", 15*time.Minute),
		GenerateAheadDays:   getInt("GENERATE_AHEAD_DAYS", 1),
		Timezone:            time.UTC,
	}
	if env.DatabaseDSN == "" {
		env.DatabaseDSN = BuildDSN(
			getString("DB_USER", "root"),
			getString("DB_PASSWORD", ""),
			getString("DB_HOST", "127.0.0.1:3306"),
			getString("DB_NAME", "busline"),
		)
	}
	if tz := getString("APP_TZ", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			log.Printf("warning: unknown APP_TZ %q, using UTC", tz)
		} else {
			env.Timezone = loc
		}
	}
	for _, o := range strings.Split(getString("CORS_ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			env.CORSOrigins = append(env.CORSOrigins, o)
		}
	}
	return env
}

// BuildDSN returns a go-sql-driver/mysql DSN. Dates are read back as UTC.
func BuildDSN(user, password, host, name string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&timeout=5s&readTimeout=30s&writeTimeout=30s&multiStatements=true",
		user, password, host, name)
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := getString(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warning: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := getString(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("warning: %s=%q is not a number, using %v", key, v, def)
		return def
	}
	return f
}

func getDuration(key string, def time.Duration) time.Duration {
	v := getString(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("warning: %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}
