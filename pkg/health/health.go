package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker интерфейс для проверки здоровья сервиса
type HealthChecker interface {
	Check(ctx context.Context) *HealthStatus
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Status представляет статус зависимости
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// CheckFunc проверяет одну зависимость
type CheckFunc func(ctx context.Context) error

type dependency struct {
	name     string
	check    CheckFunc
	critical bool
}

// DependencyHealthChecker опрашивает зарегистрированные зависимости.
// Отказ критичной зависимости делает сервис unhealthy, некритичной - degraded.
type DependencyHealthChecker struct {
	version      string
	timeout      time.Duration
	dependencies []dependency
}

// NewDependencyHealthChecker создает новый DependencyHealthChecker
func NewDependencyHealthChecker(version string, timeout time.Duration) *DependencyHealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DependencyHealthChecker{version: version, timeout: timeout}
}

// Register добавляет проверку зависимости
func (d *DependencyHealthChecker) Register(name string, critical bool, check CheckFunc) *DependencyHealthChecker {
	d.dependencies = append(d.dependencies, dependency{name: name, check: check, critical: critical})
	return d
}

// Check проверяет здоровье сервиса
func (d *DependencyHealthChecker) Check(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   d.version,
		Services:  make(map[string]Status, len(d.dependencies)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, dep := range d.dependencies {
		wg.Add(1)
		go func(dep dependency) {
			defer wg.Done()
			err := dep.check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				result.Services[dep.name] = Status{Status: StatusHealthy}
				return
			}
			result.Services[dep.name] = Status{Status: StatusUnhealthy, Details: err.Error()}
			if dep.critical {
				result.Status = StatusUnhealthy
			} else if result.Status == StatusHealthy {
				result.Status = StatusDegraded
			}
		}(dep)
	}
	wg.Wait()

	return result
}

// Names возвращает имена зарегистрированных зависимостей
func (d *DependencyHealthChecker) Names() []string {
	names := make([]string, 0, len(d.dependencies))
	for _, dep := range d.dependencies {
		names = append(names, dep.name)
	}
	sort.Strings(names)
	return names
}

// Handler создает HTTP обработчик для health check эндпоинта
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())

		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// ReadyHandler создает HTTP обработчик для ready check эндпоинта.
// Возвращает 200 если критичные зависимости доступны.
func ReadyHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker.Check(r.Context()).Status == StatusUnhealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// LiveHandler создает HTTP обработчик для live check эндпоинта.
// Возвращает 200 если процесс жив.
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
