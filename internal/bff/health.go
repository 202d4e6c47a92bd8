package bff

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masivos/admin-gateway/internal/pkg/httputil"
)

// HealthStatus is the overall health of the gateway.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

const notConfigured = "not configured"

// BucketChecker reports whether the export bucket is reachable.
// *export.S3Sink satisfies it.
type BucketChecker interface {
	Check(ctx context.Context) error
}

// HealthChecker checks the backend gateway, Postgres, Redis and the export
// bucket. Every dependency except the backend can be nil.
type HealthChecker struct {
	backendURL  string
	httpClient  *http.Client
	db          *sql.DB
	redisClient *redis.Client
	bucket      BucketChecker
	startTime   time.Time
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(backendURL string, db *sql.DB, redisClient *redis.Client, bucket BucketChecker) *HealthChecker {
	return &HealthChecker{
		backendURL:  backendURL,
		httpClient:  &http.Client{Timeout: 3 * time.Second},
		db:          db,
		redisClient: redisClient,
		bucket:      bucket,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth always answers 200; the body carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness answers 503 when the gateway cannot serve traffic.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

type namedCheck struct {
	name string
	run  func(context.Context) ComponentCheck
}

func (hc *HealthChecker) checks() []namedCheck {
	return []namedCheck{
		{"backend", hc.checkBackend},
		{"database", hc.checkDatabase},
		{"redis", hc.checkRedis},
		{"s3", hc.checkS3},
	}
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checks := hc.checks()
	results := make([]ComponentCheck, len(checks))

	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx)
		}()
	}
	wg.Wait()

	out := make(map[string]ComponentCheck, len(checks))
	for i, c := range checks {
		out[c.name] = results[i]
	}
	return out
}

// probe runs ping under timeout. Answers slower than slow are degraded.
func probe(ctx context.Context, timeout, slow time.Duration, okMsg string, ping func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)
	switch {
	case err != nil:
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: err.Error()}
	case latency > slow:
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: okMsg}
}

// checkBackend calls the gateway health endpoint. Any answer below 500
// means the gateway is reachable.
func (hc *HealthChecker) checkBackend(ctx context.Context) ComponentCheck {
	if hc.backendURL == "" {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 3*time.Second, time.Second, "reachable", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.backendURL+"/actuator/health", nil)
		if err != nil {
			return err
		}
		resp, err := hc.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 3*time.Second, time.Second, "connected", hc.db.PingContext)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 2*time.Second, 500*time.Millisecond, "connected", func(ctx context.Context) error {
		return hc.redisClient.Ping(ctx).Err()
	})
}

// checkS3 verifies the export bucket is reachable.
func (hc *HealthChecker) checkS3(ctx context.Context) ComponentCheck {
	if hc.bucket == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return probe(ctx, 3*time.Second, 2*time.Second, "bucket accessible", hc.bucket.Check)
}

// determineOverallStatus derives the aggregate status.
//
// Rules:
//   - "unhealthy" if the backend gateway is down
//   - "degraded"  if any check is degraded or a configured check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if b, ok := checks["backend"]; ok && b.Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != notConfigured {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
