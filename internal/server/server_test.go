package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/domain/status"
	storage "taskmanager/repository/inmemory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetTasks(ctx context.Context, q query.Query) ([]models.Task, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *MockTaskRepository) UpdateTask(ctx context.Context, id string, task *models.Task) error {
	args := m.Called(ctx, id, task)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type testEnv struct {
	api   *TaskAPI
	repo  *storage.Storage
	admin string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := storage.NewStorage()
	api := NewTaskAPI(repo, repo, &Config{JWTSecret: "test-secret", AdminEmail: "root@example.com", AdminPassword: "rootpass"})
	require.NotNil(t, api)
	require.NoError(t, api.EnsureAdmin(context.Background()))
	return &testEnv{api: api, repo: repo, admin: api.loginToken(t, "root@example.com", "rootpass")}
}

func (api *TaskAPI) loginToken(t *testing.T, email, password string) string {
	t.Helper()
	w := doRequest(api, http.MethodPost, "/auth/login", "", models.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (e *testEnv) register(t *testing.T, first, email string) (string, string) {
	t.Helper()
	w := doRequest(e.api, http.MethodPost, "/auth/register", "", models.RegisterRequest{
		FirstName: first, LastName: "Test", Email: email, Password: "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID, resp.Token
}

func doRequest(api *TaskAPI, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, req)
	return w
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) models.TaskView {
	t.Helper()
	var resp struct {
		Task models.TaskView `json:"task"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Task
}

func decodeTasks(t *testing.T, w *httptest.ResponseRecorder) []models.TaskView {
	t.Helper()
	var resp struct {
		Tasks []models.TaskView `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Tasks
}

func reminderIn(d time.Duration) *time.Time {
	r := time.Now().Add(d).UTC()
	return &r
}

func TestNewTaskAPI(t *testing.T) {
	repo := storage.NewStorage()
	assert.Nil(t, NewTaskAPI(nil, repo, nil))
	assert.Nil(t, NewTaskAPI(repo, nil, nil))

	api := NewTaskAPI(repo, repo, nil)
	require.NotNil(t, api)
	assert.Equal(t, "0.0.0.0:8080", api.httpSrv.Addr)
	assert.Equal(t, defaultCookieName, api.cfg.CookieName)
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		request any
		want    struct {
			statusCode int
			errorIs    error
		}
	}{
		{
			name:    "successful registration",
			request: models.RegisterRequest{FirstName: "Ann", LastName: "Lee", Email: "ann@example.com", Password: "password123"},
			want: struct {
				statusCode int
				errorIs    error
			}{statusCode: http.StatusCreated},
		},
		{
			name:    "duplicate email",
			request: models.RegisterRequest{FirstName: "Ann", LastName: "Lee", Email: "ROOT@example.com", Password: "password123"},
			want: struct {
				statusCode int
				errorIs    error
			}{statusCode: http.StatusConflict, errorIs: errors.ErrUserAlreadyExists},
		},
		{
			name:    "invalid email",
			request: models.RegisterRequest{FirstName: "Ann", LastName: "Lee", Email: "not-an-email", Password: "password123"},
			want: struct {
				statusCode int
				errorIs    error
			}{statusCode: http.StatusBadRequest, errorIs: errors.ErrInvalidEmail},
		},
		{
			name:    "short password",
			request: models.RegisterRequest{FirstName: "Ann", LastName: "Lee", Email: "ann2@example.com", Password: "123"},
			want: struct {
				statusCode int
				errorIs    error
			}{statusCode: http.StatusBadRequest, errorIs: errors.ErrInvalidPassword},
		},
		{
			name:    "malformed body",
			request: "not json object",
			want: struct {
				statusCode int
				errorIs    error
			}{statusCode: http.StatusBadRequest, errorIs: errors.ErrBadRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := doRequest(env.api, http.MethodPost, "/auth/register", "", tt.request)
			assert.Equal(t, tt.want.statusCode, w.Code)

			if tt.want.errorIs != nil {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Contains(t, body["error"], tt.want.errorIs.Error())
				return
			}
			var resp models.AuthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, models.RoleUser, resp.Role)
			assert.NotEmpty(t, w.Result().Cookies())
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.register(t, "Bob", "bob@example.com")

	w := doRequest(env.api, http.MethodPost, "/auth/login", "", models.LoginRequest{Email: "bob@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(env.api, http.MethodPost, "/auth/login", "", models.LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := env.api.loginToken(t, "BOB@example.com", "password123")

	w = doRequest(env.api, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.User["id"])
	assert.NotContains(t, resp.User, "password")

	assert.Equal(t, http.StatusUnauthorized, doRequest(env.api, http.MethodGet, "/auth/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(env.api, http.MethodGet, "/auth/me", "garbage", nil).Code)
}

func TestCookieAuthAndLogout(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "Cookie", "cookie@example.com")

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: "jwt_token", Value: token})
	w := httptest.NewRecorder()
	env.api.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(env.api, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "jwt_token", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
}

func TestExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.register(t, "Old", "old@example.com")

	expired := NewJWTManager("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := expired.Generate(&models.User{ID: id, Role: models.RoleUser})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, doRequest(env.api, http.MethodGet, "/tasks", token, nil).Code)
}

func TestTaskCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, alice := env.register(t, "Alice", "alice@example.com")
	_, carol := env.register(t, "Carol", "carol@example.com")

	w := doRequest(env.api, http.MethodPost, "/tasks", alice, models.CreateTaskRequest{Title: "No reminder"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env.api, http.MethodPost, "/tasks", alice, models.CreateTaskRequest{Title: "t", Priority: "URGENT", ReminderDate: reminderIn(time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env.api, http.MethodPost, "/tasks", alice, models.CreateTaskRequest{
		Title: "Write docs", Description: "for the API", Status: "IN_PROGRESS", ReminderDate: reminderIn(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeTask(t, w)
	assert.Equal(t, status.InProgress, created.Status)
	assert.Equal(t, models.PriorityMedium, created.Priority)
	require.NotNil(t, created.User)
	assert.Equal(t, "Alice", created.User.FirstName)

	w = doRequest(env.api, http.MethodGet, "/tasks/"+created.ID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeTask(t, w).ID)

	assert.Equal(t, http.StatusNotFound, doRequest(env.api, http.MethodGet, "/tasks/"+created.ID, carol, nil).Code)

	title := "Write better docs"
	w = doRequest(env.api, http.MethodPut, "/tasks/"+created.ID, alice, models.UpdateTaskRequest{Title: &title})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeTask(t, w)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "for the API", updated.Description)

	assert.Equal(t, http.StatusNotFound, doRequest(env.api, http.MethodPut, "/tasks/"+created.ID, carol, models.UpdateTaskRequest{Title: &title}).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(env.api, http.MethodDelete, "/tasks/"+created.ID, carol, nil).Code)

	w = doRequest(env.api, http.MethodDelete, "/tasks/"+created.ID, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, doRequest(env.api, http.MethodDelete, "/tasks/"+created.ID, alice, nil).Code)
}

func TestAssigneeStatusOnly(t *testing.T) {
	env := newTestEnv(t)
	bobID, bob := env.register(t, "Bob", "bob@example.com")

	w := doRequest(env.api, http.MethodPost, "/tasks", env.admin, models.CreateTaskRequest{
		Title: "Assigned", AssignedTo: bobID, ReminderDate: reminderIn(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	task := decodeTask(t, w)

	done := "COMPLETED"
	w = doRequest(env.api, http.MethodPut, "/tasks/"+task.ID, bob, models.UpdateTaskRequest{Status: &done})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, status.Completed, decodeTask(t, w).Status)

	title := "mine now"
	assert.Equal(t, http.StatusForbidden, doRequest(env.api, http.MethodPut, "/tasks/"+task.ID, bob, models.UpdateTaskRequest{Title: &title}).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(env.api, http.MethodDelete, "/tasks/"+task.ID, bob, nil).Code)
}

func TestAssignmentScenario(t *testing.T) {
	env := newTestEnv(t)
	bID, b := env.register(t, "B", "b@example.com")
	cID, c := env.register(t, "C", "c@example.com")

	w := doRequest(env.api, http.MethodPost, "/tasks", env.admin, models.CreateTaskRequest{
		Title: "Shared", Status: "TODO", AssignedTo: bID, ReminderDate: reminderIn(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	task := decodeTask(t, w)

	listIDs := func(token string) []string {
		w := doRequest(env.api, http.MethodGet, "/tasks", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var out []string
		for _, v := range decodeTasks(t, w) {
			out = append(out, v.ID)
		}
		return out
	}

	assert.Contains(t, listIDs(b), task.ID)
	assert.NotContains(t, listIDs(c), task.ID)

	w = doRequest(env.api, http.MethodPut, "/tasks/"+task.ID, env.admin, models.UpdateTaskRequest{AssignedTo: &cID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cID, decodeTask(t, w).AssignedTo)

	assert.NotContains(t, listIDs(b), task.ID)
	assert.Contains(t, listIDs(c), task.ID)
}

func TestGetTasksETag(t *testing.T) {
	env := newTestEnv(t)
	_, alice := env.register(t, "Alice", "alice@example.com")
	w := doRequest(env.api, http.MethodPost, "/tasks", alice, models.CreateTaskRequest{Title: "etag", ReminderDate: reminderIn(time.Hour)})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(env.api, http.MethodGet, "/tasks", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+alice)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	env.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	w = doRequest(env.api, http.MethodGet, "/tasks?status=TODO", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))
	assert.Len(t, decodeTasks(t, w), 1)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	bobID, bob := env.register(t, "Bob", "bob@example.com")
	w := doRequest(env.api, http.MethodPost, "/tasks", bob, models.CreateTaskRequest{Title: "bob's", ReminderDate: reminderIn(time.Hour)})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "users as admin", path: "/admin/users", token: env.admin, want: http.StatusOK},
		{name: "users as user", path: "/admin/users", token: bob, want: http.StatusForbidden},
		{name: "users anonymous", path: "/admin/users", want: http.StatusUnauthorized},
		{name: "with tasks", path: "/admin/users/with-tasks", token: env.admin, want: http.StatusOK},
		{name: "single user", path: "/admin/users/" + bobID, token: env.admin, want: http.StatusOK},
		{name: "missing user", path: "/admin/users/ghost", token: env.admin, want: http.StatusNotFound},
		{name: "all tasks", path: "/admin/tasks", token: env.admin, want: http.StatusOK},
		{name: "stats", path: "/admin/stats", token: env.admin, want: http.StatusOK},
		{name: "stats as user", path: "/admin/stats", token: bob, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doRequest(env.api, http.MethodGet, tt.path, tt.token, nil).Code)
		})
	}

	w = doRequest(env.api, http.MethodGet, "/admin/users/with-tasks", env.admin, nil)
	var resp struct {
		Users []models.UserSummary `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	for _, u := range resp.Users {
		if u.ID == bobID {
			assert.Equal(t, 1, u.TasksCount)
			assert.Equal(t, 1, u.AssignedCount)
		}
	}
}

func TestStorageFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: http.StatusGatewayTimeout},
		{name: "unexpected failure", err: errors.New("connection reset"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := storage.NewStorage()
			mockTaskRepo := new(MockTaskRepository)
			mockTaskRepo.On("GetTasks", mock.Anything, mock.AnythingOfType("query.Query")).Return(nil, tt.err)

			api := NewTaskAPI(users, mockTaskRepo, &Config{JWTSecret: "test-secret"})
			u := &models.User{FirstName: "M", LastName: "R", Email: "m@example.com", Role: models.RoleUser}
			require.NoError(t, users.CreateUser(context.Background(), u))
			token, err := api.jwt.Generate(u)
			require.NoError(t, err)

			w := doRequest(api, http.MethodGet, "/tasks", token, nil)
			assert.Equal(t, tt.wantCode, w.Code)
			mockTaskRepo.AssertExpectations(t)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.ErrValidationFailed, http.StatusBadRequest},
		{errors.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.ErrForbidden, http.StatusForbidden},
		{errors.ErrTaskNotFound, http.StatusNotFound},
		{errors.ErrUserAlreadyExists, http.StatusConflict},
		{errors.ErrTooManyRequests, http.StatusTooManyRequests},
		{errors.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, doRequest(env.api, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(env.api, http.MethodGet, "/nope", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(env.api, http.MethodPatch, "/healthz", "", nil).Code)
}
