package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck интерфейс для health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// HealthRegistry реестр проверок здоровья для /healthz
type HealthRegistry struct {
	mu      sync.RWMutex
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthRegistry создает реестр с таймаутом на весь прогон проверок
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthRegistry{timeout: timeout}
}

// Register регистрирует health check
func (r *HealthRegistry) Register(check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check)
}

// Run выполняет все проверки
func (r *HealthRegistry) Run(ctx context.Context) HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.RLock()
	checks := make([]HealthCheck, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	result := HealthCheckResult{
		Status:    "healthy",
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)

		entry := CheckResult{Status: "healthy", Duration: time.Since(start).String()}
		if err != nil {
			entry.Status = "unhealthy"
			entry.Message = err.Error()
			result.Status = "unhealthy"
		}
		result.Checks[check.Name()] = entry
	}

	return result
}

// Handler возвращает Gin handler для health check
func (r *HealthRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := r.Run(c.Request.Context())
		if result.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// FuncHealthCheck проверка на основе функции
type FuncHealthCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

// NewFuncHealthCheck создает проверку с указанным именем
func NewFuncHealthCheck(name string, checkFunc func(ctx context.Context) error) *FuncHealthCheck {
	return &FuncHealthCheck{name: name, checkFunc: checkFunc}
}

// Name возвращает имя проверки
func (h *FuncHealthCheck) Name() string {
	return h.name
}

// Check выполняет проверку
func (h *FuncHealthCheck) Check(ctx context.Context) error {
	if h.checkFunc == nil {
		return fmt.Errorf("check function is nil")
	}
	return h.checkFunc(ctx)
}
