// Package client talks to the task service over HTTP and keeps a local,
// optimistically updated copy of the caller's tasks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
)

const DefaultTimeout = 15 * time.Second

// API is a thin typed wrapper over the service's HTTP interface. Failures come
// back as the sentinels in internal/domain/errors.
type API struct {
	baseURL string
	http    *http.Client
	session *Session
	timeout time.Duration

	mu       sync.Mutex
	etag     string
	lastList []models.TaskView
}

func NewAPI(baseURL string, session *Session) *API {
	if session == nil {
		session = NewSession(nil)
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		session: session,
		timeout: DefaultTimeout,
	}
}

// WithTimeout bounds every call, both on the transport and through the context.
func (a *API) WithTimeout(d time.Duration) *API {
	if d > 0 {
		a.timeout = d
		a.http.Timeout = d
	}
	return a
}

func (a *API) Session() *Session {
	return a.session
}

func (a *API) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if _, err := a.do(ctx, http.MethodPost, "/auth/register", req, &resp, nil); err != nil {
		return nil, err
	}
	a.session.Set(resp.Token)
	return &resp, nil
}

func (a *API) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if _, err := a.do(ctx, http.MethodPost, "/auth/login", models.LoginRequest{Email: email, Password: password}, &resp, nil); err != nil {
		return nil, err
	}
	a.session.Set(resp.Token)
	return &resp, nil
}

// Logout drops the local token even if the server call fails.
func (a *API) Logout(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	a.session.Clear()
	a.resetListCache()
	return err
}

func (a *API) Me(ctx context.Context) (*models.User, error) {
	var resp struct {
		User models.User `json:"user"`
	}
	if _, err := a.do(ctx, http.MethodGet, "/auth/me", nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Restore checks the stored token. A rejected token is cleared silently and
// reported as no session rather than as an error.
func (a *API) Restore(ctx context.Context) (*models.User, error) {
	if a.session.Token() == "" {
		return nil, nil
	}
	user, err := a.Me(ctx)
	if errors.Is(err, errors.ErrUnauthorized) {
		a.session.Clear()
		return nil, nil
	}
	return user, err
}

// ListTasks fetches the caller's tasks. The unfiltered list is requested
// conditionally and a 304 answer is served from the previous response.
func (a *API) ListTasks(ctx context.Context, f query.Filters) ([]models.TaskView, error) {
	return a.listTasks(ctx, "/tasks", f)
}

func (a *API) AdminTasks(ctx context.Context, f query.Filters) ([]models.TaskView, error) {
	return a.listTasks(ctx, "/admin/tasks", f)
}

func (a *API) listTasks(ctx context.Context, path string, f query.Filters) ([]models.TaskView, error) {
	conditional := f.Empty() && path == "/tasks"
	if values := f.Values().Encode(); values != "" {
		path += "?" + values
	}

	header := http.Header{}
	if conditional {
		a.mu.Lock()
		if a.etag != "" {
			header.Set("If-None-Match", a.etag)
		}
		a.mu.Unlock()
	}

	var resp struct {
		Tasks []models.TaskView `json:"tasks"`
	}
	httpResp, err := a.do(ctx, http.MethodGet, path, nil, &resp, header)
	if err != nil {
		return nil, err
	}
	if !conditional {
		return resp.Tasks, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if httpResp.StatusCode == http.StatusNotModified {
		return append([]models.TaskView(nil), a.lastList...), nil
	}
	a.etag = httpResp.Header.Get("ETag")
	a.lastList = append([]models.TaskView(nil), resp.Tasks...)
	return resp.Tasks, nil
}

func (a *API) GetTask(ctx context.Context, id string) (*models.TaskView, error) {
	var resp struct {
		Task models.TaskView `json:"task"`
	}
	if _, err := a.do(ctx, http.MethodGet, "/tasks/"+id, nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

func (a *API) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.TaskView, error) {
	var resp struct {
		Task models.TaskView `json:"task"`
	}
	if _, err := a.do(ctx, http.MethodPost, "/tasks", req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

func (a *API) UpdateTask(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.TaskView, error) {
	var resp struct {
		Task models.TaskView `json:"task"`
	}
	if _, err := a.do(ctx, http.MethodPut, "/tasks/"+id, req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

func (a *API) DeleteTask(ctx context.Context, id string) error {
	_, err := a.do(ctx, http.MethodDelete, "/tasks/"+id, nil, nil, nil)
	return err
}

func (a *API) AdminUsers(ctx context.Context) ([]models.User, error) {
	var resp struct {
		Users []models.User `json:"users"`
	}
	if _, err := a.do(ctx, http.MethodGet, "/admin/users", nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (a *API) AdminUsersWithTasks(ctx context.Context) ([]models.UserSummary, error) {
	var resp struct {
		Users []models.UserSummary `json:"users"`
	}
	if _, err := a.do(ctx, http.MethodGet, "/admin/users/with-tasks", nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (a *API) AdminStats(ctx context.Context) (*models.Stats, error) {
	var resp struct {
		Stats models.Stats `json:"stats"`
	}
	if _, err := a.do(ctx, http.MethodGet, "/admin/stats", nil, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}

func (a *API) resetListCache() {
	a.mu.Lock()
	a.etag = ""
	a.lastList = nil
	a.mu.Unlock()
}

func (a *API) do(ctx context.Context, method, path string, body, out any, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrBadRequest, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrBadRequest, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := a.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s %s", errors.ErrTimeout, method, path)
		}
		log.Println("[ERROR] Request failed:", method, path, err)
		return nil, fmt.Errorf("%w: %w", errors.ErrInternalServer, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s %s", errors.ErrTimeout, method, path)
		}
		return nil, fmt.Errorf("%w: %w", errors.ErrInternalServer, err)
	}

	if resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", errors.ErrInternalServer, path, err)
		}
	}
	return resp, nil
}

// statusError maps a response status back to the sentinel the server started from.
func statusError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Error
	if msg == "" {
		msg = http.StatusText(code)
	}

	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = errors.ErrValidationFailed
	case http.StatusUnauthorized:
		sentinel = errors.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = errors.ErrForbidden
	case http.StatusNotFound:
		sentinel = errors.ErrNotFound
	case http.StatusConflict:
		sentinel = errors.ErrConflict
	case http.StatusTooManyRequests:
		sentinel = errors.ErrTooManyRequests
	case http.StatusGatewayTimeout:
		sentinel = errors.ErrTimeout
	default:
		sentinel = errors.ErrInternalServer
	}
	if msg == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
