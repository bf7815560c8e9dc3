package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/taskstore"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
	"github.com/redis/go-redis/v9"
)

type TaskAPI struct {
	httpSrv  *http.Server
	cfg      *Config
	users    taskstore.UserRepository
	store    *taskstore.Store
	jwt      *JWTManager
	hasher   *PasswordHasher
	limiter  Limiter
	validate *validator.Validate
}

func NewTaskAPI(users taskstore.UserRepository, tasks taskstore.TaskRepository, cfg *Config) *TaskAPI {
	if users == nil || tasks == nil {
		return nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	api := &TaskAPI{
		httpSrv:  &http.Server{Addr: cfg.ListenAddr(), ReadHeaderTimeout: 10 * time.Second},
		cfg:      cfg,
		users:    users,
		store:    taskstore.NewStore(users, tasks),
		jwt:      NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		hasher:   NewPasswordHasher(0),
		validate: validator.New(),
	}
	if cfg.RedisAddr != "" {
		api.limiter = NewRedisLimiter(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.LoginRateLimit, time.Minute)
		log.Println("[INFO] Auth rate limiting enabled via redis:", cfg.RedisAddr)
	}

	api.configRoutes()
	return api
}

// SetLimiter replaces the auth rate limiter; nil disables limiting.
func (api *TaskAPI) SetLimiter(l Limiter) {
	api.limiter = l
}

func (api *TaskAPI) Handler() http.Handler {
	return api.httpSrv.Handler
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}
	err := api.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	if api.httpSrv == nil {
		return nil
	}
	return api.httpSrv.Shutdown(ctx)
}

// EnsureAdmin creates the configured bootstrap admin if it does not exist yet.
func (api *TaskAPI) EnsureAdmin(ctx context.Context) error {
	email := strings.ToLower(strings.TrimSpace(api.cfg.AdminEmail))
	if email == "" || api.cfg.AdminPassword == "" {
		return nil
	}
	if _, err := api.users.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, errors.ErrUserNotFound) {
		return err
	}
	hash, err := api.hasher.Hash(api.cfg.AdminPassword)
	if err != nil {
		return err
	}
	admin := &models.User{FirstName: "Admin", LastName: "User", Email: email, Password: hash, Role: models.RoleAdmin}
	if err := api.users.CreateUser(ctx, admin); err != nil && !errors.Is(err, errors.ErrUserAlreadyExists) {
		return err
	}
	log.Println("[SUCCESS] Bootstrap admin ensured:", email)
	return nil
}

func (api *TaskAPI) configRoutes() {
	router := gin.Default()
	router.HandleMethodNotAllowed = true

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errors.ErrNotFound.Error()})
	})

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limited := func(ctx *gin.Context) { RateLimit(api.limiter)(ctx) }
	authed := AuthRequired(api.jwt, api.users, api.cfg.CookieName)

	auth := router.Group("/auth")
	{
		auth.POST("/register", limited, api.register)
		auth.POST("/login", limited, api.login)
		auth.POST("/logout", api.logout)
		auth.GET("/me", authed, api.me)
	}

	tasks := router.Group("/tasks", authed)
	{
		tasks.GET("", api.getTasks)
		tasks.POST("", api.createTask)
		tasks.GET("/:taskID", api.getTaskByID)
		tasks.PUT("/:taskID", api.updateTask)
		tasks.DELETE("/:taskID", api.deleteTask)
	}

	admin := router.Group("/admin", authed, AdminOnly())
	{
		admin.GET("/users", api.adminUsers)
		admin.GET("/users/with-tasks", api.adminUsersWithTasks)
		admin.GET("/users/:userID", api.adminUser)
		admin.GET("/tasks", api.getTasks)
		admin.GET("/stats", api.adminStats)
	}

	api.httpSrv.Handler = router
}

func (api *TaskAPI) register(ctx *gin.Context) {
	var req models.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := api.validate.Struct(req); err != nil {
		respondError(ctx, validationErrorToErrorResponse(err))
		return
	}

	if existing, _ := api.users.GetUserByEmail(ctx.Request.Context(), req.Email); existing != nil {
		respondError(ctx, errors.ErrUserAlreadyExists)
		return
	}

	hash, err := api.hasher.Hash(req.Password)
	if err != nil {
		respondError(ctx, err)
		return
	}
	user := &models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  hash,
		Role:      models.RoleUser,
	}
	if err := api.users.CreateUser(ctx.Request.Context(), user); err != nil {
		respondError(ctx, err)
		return
	}
	api.issueToken(ctx, http.StatusCreated, user)
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := api.validate.Struct(req); err != nil {
		respondError(ctx, validationErrorToErrorResponse(err))
		return
	}

	user, err := api.users.GetUserByEmail(ctx.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			respondError(ctx, errors.ErrInvalidCredentials)
			return
		}
		respondError(ctx, err)
		return
	}
	if !api.hasher.Verify(req.Password, user.Password) {
		respondError(ctx, errors.ErrInvalidCredentials)
		return
	}
	api.issueToken(ctx, http.StatusOK, user)
}

func (api *TaskAPI) issueToken(ctx *gin.Context, code int, user *models.User) {
	token, err := api.jwt.Generate(user)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(api.cfg.CookieName, token, int(api.cfg.TokenTTL.Seconds()), "/", "", false, true)
	ctx.JSON(code, models.AuthResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Role:      user.Role,
		Token:     token,
	})
}

func (api *TaskAPI) logout(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(api.cfg.CookieName, "", -1, "/", "", false, true)
	ctx.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (api *TaskAPI) me(ctx *gin.Context) {
	user := userFrom(ctx)
	if user == nil {
		respondError(ctx, errors.ErrUnauthorized)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

// getTasks serves both /tasks and /admin/tasks. The unfiltered list carries
// an ETag and honours If-None-Match.
func (api *TaskAPI) getTasks(ctx *gin.Context) {
	filters := query.ParseFilters(ctx.Request.URL.Query())
	views, err := api.store.List(ctx.Request.Context(), actorFrom(ctx), filters)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !filters.Empty() {
		ctx.JSON(http.StatusOK, gin.H{"tasks": views})
		return
	}

	body, err := json.Marshal(gin.H{"tasks": views})
	if err != nil {
		respondError(ctx, err)
		return
	}
	etag := etagFor(body)
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "private, no-cache")
	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (api *TaskAPI) getTaskByID(ctx *gin.Context) {
	view, err := api.store.Get(ctx.Request.Context(), ctx.Param("taskID"), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": view})
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	var req models.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	if err := api.validate.Struct(req); err != nil {
		respondError(ctx, validationErrorToErrorResponse(err))
		return
	}
	view, err := api.store.Create(ctx.Request.Context(), req.Input(), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"task": view})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	var req models.UpdateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	if err := api.validate.Struct(req); err != nil {
		respondError(ctx, validationErrorToErrorResponse(err))
		return
	}
	view, err := api.store.Update(ctx.Request.Context(), ctx.Param("taskID"), req.Patch(), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": view})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	if err := api.store.Delete(ctx.Request.Context(), ctx.Param("taskID"), actorFrom(ctx)); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (api *TaskAPI) adminUsers(ctx *gin.Context) {
	users, err := api.store.Users(ctx.Request.Context(), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (api *TaskAPI) adminUsersWithTasks(ctx *gin.Context) {
	users, err := api.store.UsersWithTaskCounts(ctx.Request.Context(), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (api *TaskAPI) adminUser(ctx *gin.Context) {
	user, err := api.store.User(ctx.Request.Context(), ctx.Param("userID"), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

func (api *TaskAPI) adminStats(ctx *gin.Context) {
	stats, err := api.store.Stats(ctx.Request.Context(), actorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"stats": stats})
}

// respondError writes the status code for err's kind. Internal failures are
// logged and reported without detail.
func respondError(ctx *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Println("[ERROR] Request failed:", ctx.Request.Method, ctx.Request.URL.Path, err)
		ctx.JSON(code, gin.H{"error": errors.ErrInternalServer.Error()})
		return
	}
	ctx.JSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrUserAlreadyExists), errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errors.ErrTooManyRequests):
		return http.StatusTooManyRequests
	}
	switch errors.Kind(err) {
	case errors.ErrValidationFailed:
		return http.StatusBadRequest
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func validationErrorToErrorResponse(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			switch verr.Field() {
			case "FirstName":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidFirstName)
			case "LastName":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidLastName)
			case "Email":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidEmail)
			case "Password":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidPassword)
			case "Title":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidTitle)
			case "Description":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidDescription)
			case "Priority":
				return fmt.Errorf("%w: %w", errors.ErrValidationFailed, errors.ErrInvalidPriority)
			}
		}
	}
	return errors.ErrValidationFailed
}
