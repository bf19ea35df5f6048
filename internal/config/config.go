package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by TRUSTFUSE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("TRUSTFUSE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return Validate()
}

// Validate checks the values that would otherwise only fail on first use.
func Validate() error {
	if _, err := RevisionTerms(); err != nil {
		return fmt.Errorf("REVISION_TERMS: %w", err)
	}
	if v := os.Getenv("FUSION_TYPE"); v != "" && !domain.ValidFusionType(strings.ToLower(v)) {
		return fmt.Errorf("FUSION_TYPE: unknown fusion type %q", v)
	}
	if v := os.Getenv("SHARE_POLICY"); v != "" && !domain.ValidSharePolicy(strings.ToLower(v)) {
		return fmt.Errorf("SHARE_POLICY: unknown share policy %q", v)
	}
	if v := os.Getenv("REFERENCE_POLICY"); v != "" && !domain.ValidReferencePolicy(strings.ToLower(v)) {
		return fmt.Errorf("REFERENCE_POLICY: unknown reference policy %q", v)
	}
	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// FusionType returns the default fusion rule for new sessions.
// Defaults to cumulative.
func FusionType() domain.FusionType {
	v := strings.ToLower(os.Getenv("FUSION_TYPE"))
	if !domain.ValidFusionType(v) {
		return domain.FusionCumulative
	}
	return domain.FusionType(v)
}

// RevisionTerms returns the default revision terms for new sessions,
// written as "type:conflict:weight,...". Defaults to conflict shares on
// average conflict with weight 1.
func RevisionTerms() ([]domain.RevisionTerm, error) {
	v := os.Getenv("REVISION_TERMS")
	if v == "" {
		return []domain.RevisionTerm{
			{Type: domain.RevisionConflictShares, Conflict: domain.ConflictAverage, Weight: 1},
		}, nil
	}
	return domain.ParseRevisionTerms(v)
}

// SharePolicy defaults to leave_one_out.
func SharePolicy() domain.SharePolicy {
	v := strings.ToLower(os.Getenv("SHARE_POLICY"))
	if !domain.ValidSharePolicy(v) {
		return domain.ShareLeaveOneOut
	}
	return domain.SharePolicy(v)
}

// ReferencePolicy defaults to leave_one_out.
func ReferencePolicy() domain.ReferencePolicy {
	v := strings.ToLower(os.Getenv("REFERENCE_POLICY"))
	if !domain.ValidReferencePolicy(v) {
		return domain.ReferenceLeaveOneOut
	}
	return domain.ReferencePolicy(v)
}

func ScaleByTrustUncertainty() bool {
	b, err := strconv.ParseBool(os.Getenv("SCALE_BY_TRUST_UNCERTAINTY"))
	return err == nil && b
}

// DirichletWeight returns the non-informative prior weight for soft
// observations. Zero means "use the session dimension".
func DirichletWeight() float64 {
	w, err := strconv.ParseFloat(os.Getenv("DIRICHLET_WEIGHT"), 64)
	if err != nil || w <= 0 {
		return 0
	}
	return w
}

// TrustAgeingRate is the default hourly rate at which idle sources lose
// trust. Defaults to 0 (no ageing).
func TrustAgeingRate() float64 {
	r, err := strconv.ParseFloat(os.Getenv("TRUST_AGEING_RATE"), 64)
	if err != nil || r < 0 {
		return 0
	}
	return r
}

// AgeingInterval is how often the ageing worker runs. Defaults to 1h.
func AgeingInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("AGEING_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
