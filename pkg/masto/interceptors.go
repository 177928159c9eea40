package masto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrCircuitBreakerOpen is returned by the circuit breaker interceptor while open.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// Request is the view of an outgoing HTTP request given to interceptors.
type Request struct {
	Method   string
	Path     string
	Headers  http.Header
	Metadata map[string]interface{}
}

// Response is the view of a received HTTP response given to interceptors.
type Response struct {
	StatusCode int
	Headers    http.Header
	Duration   time.Duration
	Error      error
}

// RequestInterceptor is called before a request is sent. Returning an error
// aborts the request.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor is called after a response is received.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) error

// InterceptorChain manages a chain of interceptors.
type InterceptorChain struct {
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// NewInterceptorChain creates a new interceptor chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{
		requestInterceptors:  make([]RequestInterceptor, 0),
		responseInterceptors: make([]ResponseInterceptor, 0),
	}
}

// AddRequestInterceptor adds a request interceptor to the chain.
func (c *InterceptorChain) AddRequestInterceptor(interceptor RequestInterceptor) *InterceptorChain {
	c.requestInterceptors = append(c.requestInterceptors, interceptor)

	return c
}

// AddResponseInterceptor adds a response interceptor to the chain.
func (c *InterceptorChain) AddResponseInterceptor(interceptor ResponseInterceptor) *InterceptorChain {
	c.responseInterceptors = append(c.responseInterceptors, interceptor)

	return c
}

// ExecuteRequestInterceptors runs all request interceptors.
func (c *InterceptorChain) ExecuteRequestInterceptors(ctx context.Context, req *Request) error {
	if c == nil {
		return nil
	}

	for _, interceptor := range c.requestInterceptors {
		err := interceptor(ctx, req)
		if err != nil {
			return fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	return nil
}

// ExecuteResponseInterceptors runs all response interceptors.
func (c *InterceptorChain) ExecuteResponseInterceptors(ctx context.Context, req *Request, resp *Response) error {
	if c == nil {
		return nil
	}

	for _, interceptor := range c.responseInterceptors {
		err := interceptor(ctx, req, resp)
		if err != nil {
			return fmt.Errorf("response interceptor failed: %w", err)
		}
	}

	return nil
}

// Common Interceptors

// LoggingInterceptor logs requests.
func LoggingInterceptor(logger Logger) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		logger.Debug("API Request", map[string]interface{}{
			"method": req.Method,
			"path":   req.Path,
		})

		return nil
	}
}

// LoggingResponseInterceptor logs responses.
func LoggingResponseInterceptor(logger Logger) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		fields := map[string]interface{}{
			"method":      req.Method,
			"path":        req.Path,
			"status_code": resp.StatusCode,
			"duration":    resp.Duration.String(),
		}

		if resp.Error != nil || resp.StatusCode >= http.StatusBadRequest {
			logger.Error("API Response Error", fields)
		} else {
			logger.Debug("API Response", fields)
		}

		return nil
	}
}

// RateLimitInterceptor implements client-side token-bucket rate limiting.
func RateLimitInterceptor(requestsPerSecond int) RequestInterceptor {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	var (
		mu       sync.Mutex
		tokens   = float64(requestsPerSecond)
		capacity = float64(requestsPerSecond)
		last     = time.Now()
		interval = time.Second / time.Duration(requestsPerSecond)
	)

	return func(ctx context.Context, req *Request) error {
		for {
			mu.Lock()

			now := time.Now()
			tokens += now.Sub(last).Seconds() * capacity
			last = now

			if tokens > capacity {
				tokens = capacity
			}

			if tokens >= 1 {
				tokens--
				mu.Unlock()

				return nil
			}

			mu.Unlock()

			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// HeaderInterceptor adds custom headers to requests.
func HeaderInterceptor(headers map[string]string) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		if req.Headers == nil {
			req.Headers = make(http.Header)
		}

		for key, value := range headers {
			req.Headers.Set(key, value)
		}

		return nil
	}
}

// Metrics holds the Prometheus collectors fed by the metrics interceptors.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

// NewMetrics registers the client collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	metrics := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "masto_client_requests_total",
			Help: "HTTP requests issued by the client, by method and status code",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "masto_client_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "masto_stream_events_total",
			Help: "Streaming events received, by channel name and event type",
		}, []string{"stream", "event"}),
	}

	for _, c := range []prometheus.Collector{metrics.requests, metrics.latency, metrics.events} {
		err := reg.Register(c)
		if err != nil {
			return nil, fmt.Errorf("registering client metrics: %w", err)
		}
	}

	return metrics, nil
}

// ObserveEvent counts a streaming event. It has the EventHandler signature so
// it can be subscribed directly. Hashtag and list arguments are not used as
// labels.
func (m *Metrics) ObserveEvent(event Event) {
	m.events.WithLabelValues(event.Channel.Name, event.Type).Inc()
}

// MetricsResponseInterceptor records request count and latency.
func MetricsResponseInterceptor(metrics *Metrics) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		code := strconv.Itoa(resp.StatusCode)
		if resp.Error != nil && resp.StatusCode == 0 {
			code = "error"
		}

		metrics.requests.WithLabelValues(req.Method, code).Inc()
		metrics.latency.WithLabelValues(req.Method).Observe(resp.Duration.Seconds())

		return nil
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	Threshold        int           // Number of failures before opening
	Timeout          time.Duration // Time before trying again
	SuccessThreshold int           // Number of successes to close
}

const (
	circuitClosed   = "closed"
	circuitOpen     = "open"
	circuitHalfOpen = "half-open"
)

// CircuitBreaker tracks circuit state.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      *CircuitBreakerConfig
	failures    int
	successes   int
	state       string
	lastFailure time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = &CircuitBreakerConfig{
			Threshold:        5,
			Timeout:          60 * time.Second,
			SuccessThreshold: 2,
		}
	}

	return &CircuitBreaker{
		config: config,
		state:  circuitClosed,
	}
}

// State returns "closed", "open" or "half-open".
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// CircuitBreakerRequestInterceptor checks circuit state before requests.
func CircuitBreakerRequestInterceptor(breaker *CircuitBreaker) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		breaker.mu.Lock()
		defer breaker.mu.Unlock()

		if breaker.state == circuitOpen {
			if time.Since(breaker.lastFailure) <= breaker.config.Timeout {
				return ErrCircuitBreakerOpen
			}

			breaker.state = circuitHalfOpen
			breaker.successes = 0
		}

		return nil
	}
}

// CircuitBreakerResponseInterceptor updates circuit state based on responses.
func CircuitBreakerResponseInterceptor(breaker *CircuitBreaker) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		breaker.mu.Lock()
		defer breaker.mu.Unlock()

		if resp.Error != nil || resp.StatusCode >= http.StatusInternalServerError {
			breaker.failures++
			breaker.lastFailure = time.Now()

			if breaker.failures >= breaker.config.Threshold || breaker.state == circuitHalfOpen {
				breaker.state = circuitOpen
			}

			return nil
		}

		switch breaker.state {
		case circuitHalfOpen:
			breaker.successes++
			if breaker.successes >= breaker.config.SuccessThreshold {
				breaker.state = circuitClosed
				breaker.failures = 0
			}
		case circuitClosed:
			breaker.failures = 0
		}

		return nil
	}
}
