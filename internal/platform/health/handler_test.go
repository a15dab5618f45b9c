package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
)

type HealthSuite struct {
	suite.Suite
	handler *Handler
	router  chi.Router
}

func TestHealthSuite(t *testing.T) {
	suite.Run(t, new(HealthSuite))
}

func (s *HealthSuite) SetupTest() {
	s.handler = New("test").WithCheckTimeout(50 * time.Millisecond)
	s.router = chi.NewRouter()
	s.handler.Register(s.router)
}

func (s *HealthSuite) get(path string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func (s *HealthSuite) TestLiveness() {
	w, body := s.get("/health/live")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("alive", body["status"])
}

func (s *HealthSuite) TestStatus() {
	w, body := s.get("/health")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("test", body["environment"])
	s.Equal(Version, body["version"])
}

func (s *HealthSuite) TestReadinessAllUp() {
	s.handler.RegisterCheck("database", func() error { return nil })
	s.handler.RegisterCheck("redis", func() error { return nil })
	s.handler.RegisterCheck("ignored", nil)

	w, body := s.get("/health/ready")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ready", body["status"])
	s.Equal(map[string]any{"database": "up", "redis": "up"}, body["checks"])
}

func (s *HealthSuite) TestReadinessReportsFailures() {
	s.handler.RegisterCheck("database", func() error { return nil })
	s.handler.RegisterCheck("kafka", func() error { return errors.New("no brokers reachable") })

	w, body := s.get("/health/ready")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("not_ready", body["status"])
	checks := body["checks"].(map[string]any)
	s.Equal("up", checks["database"])
	s.Equal("down: no brokers reachable", checks["kafka"])
}

func (s *HealthSuite) TestReadinessTimesOutSlowChecks() {
	release := make(chan struct{})
	defer close(release)
	s.handler.RegisterCheck("slow", func() error {
		<-release
		return nil
	})

	w, body := s.get("/health/ready")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Contains(body["checks"].(map[string]any)["slow"], "timed out")
}
