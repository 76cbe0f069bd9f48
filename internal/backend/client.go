// Package backend предоставляет клиент удалённых сервисов витрины:
// идентификации, корзины, биллинга, оплаты и каталога.
//
// Любой метод возвращает либо результат, либо *apierr.Error.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apierr"
	"github.com/mmeshcher/storefront/internal/endpoint"
)

// RequestIDHeader передаётся с каждым запросом для сквозной трассировки.
const RequestIDHeader = "X-Request-ID"

// TokenSource отдаёт текущий bearer-токен.
type TokenSource interface {
	Token() string
}

// Client инкапсулирует HTTP-взаимодействие с сервисами витрины.
// Чтения повторяются при сетевых ошибках и 5xx, изменяющие запросы не повторяются.
type Client struct {
	baseURL        string
	read           *retryablehttp.Client
	write          *retryablehttp.Client
	tokens         TokenSource
	logger         *zap.Logger
	onUnauthorized func()
}

type options struct {
	timeout        time.Duration
	retryMax       int
	logger         *zap.Logger
	onUnauthorized func()
}

// Option настраивает Client.
type Option func(*options)

// WithTimeout задаёт таймаут одного HTTP-запроса.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetryMax задаёт число повторов для чтений.
func WithRetryMax(n int) Option {
	return func(o *options) { o.retryMax = n }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUnauthorizedHook задаёт обработчик ответа 401 на запрос с bearer-токеном.
func WithUnauthorizedHook(fn func()) Option {
	return func(o *options) { o.onUnauthorized = fn }
}

// NewClient создаёт клиент сервисов витрины по указанному адресу.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	o := options{
		timeout:  10 * time.Second,
		retryMax: 2,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL:        base,
		read:           newHTTPClient(o.timeout, o.retryMax, o.logger),
		write:          newHTTPClient(o.timeout, 0, o.logger),
		tokens:         tokens,
		logger:         o.logger,
		onUnauthorized: o.onUnauthorized,
	}
}

// SetUnauthorizedHook заменяет обработчик ответа 401.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.onUnauthorized = fn
}

func newHTTPClient(timeout time.Duration, retryMax int, logger *zap.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{logger.Sugar()}
	return rc
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

type call struct {
	ep    endpoint.Endpoint
	path  string
	query url.Values
	body  any
	out   any
	raw   *[]byte
}

func (c *Client) do(ctx context.Context, cl call) error {
	path := cl.path
	if path == "" {
		path = cl.ep.Path
	}
	target := c.baseURL + path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return apierr.Failed(fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, cl.ep.Method, target, body)
	if err != nil {
		return apierr.Failed(fmt.Errorf("create request: %w", err))
	}

	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer := false
	if !cl.ep.Public && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			bearer = true
		}
	}

	hc := c.write
	if cl.ep.Method == http.MethodGet {
		hc = c.read
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Error("backend request failed",
			zap.Error(err),
			zap.String("method", cl.ep.Method),
			zap.String("path", path),
			zap.String("requestID", reqID),
		)
		return apierr.Failed(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		c.logger.Debug("backend rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("method", cl.ep.Method),
			zap.String("path", path),
			zap.String("requestID", reqID),
		)
		if resp.StatusCode == http.StatusUnauthorized && bearer && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return apiErr
	}

	switch {
	case cl.raw != nil:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return apierr.Failed(fmt.Errorf("read response: %w", err))
		}
		*cl.raw = data
	case cl.out != nil && resp.StatusCode != http.StatusNoContent:
		if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
			return apierr.Failed(fmt.Errorf("decode response: %w", err))
		}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

// errorResponse описывает конверт ошибки сервисов витрины.
type errorResponse struct {
	Status  int               `json:"status"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func decodeError(resp *http.Response) *apierr.Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && (er.Message != "" || er.Error != "" || len(er.Errors) > 0) {
		msg := er.Message
		if msg == "" {
			msg = er.Error
		}
		return apierr.FromStatus(resp.StatusCode, msg, er.Errors)
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return apierr.FromStatus(resp.StatusCode, msg, nil)
}
