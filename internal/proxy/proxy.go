// Package proxy exposes the authenticated client over a local HTTP surface
// for the browser UI. Handlers forward requests through the executor and
// forward responses back; the browser never holds the credentials itself, so
// it inherits the refresh-and-retry contract for free.
package proxy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sarwatafreen/todo-app-website/internal/apiclient"
	"github.com/sarwatafreen/todo-app-website/internal/session"
)

// Config configures the proxy surface.
type Config struct {
	EnableCORS     bool
	AllowedOrigins []string
}

// Server is the local pass-through API server.
type Server struct {
	router *gin.Engine
}

// Handler returns the HTTP handler for mounting or serving.
func (server *Server) Handler() http.Handler {
	return server.router
}

// New assembles the router: auth endpoints backed by the session manager,
// task and chat endpoints forwarded through the executor.
func New(logger *zap.Logger, sessions *session.Manager, executor *apiclient.Executor, configuration Config) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		return nil, errors.New("proxy.new.nil_session_manager")
	}
	if executor == nil {
		return nil, errors.New("proxy.new.nil_executor")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	if configuration.EnableCORS {
		corsMiddleware, corsErr := ConfigureCORS(logger, configuration.AllowedOrigins)
		if corsErr != nil {
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	tasks := apiclient.NewTaskClient(executor)
	chat := apiclient.NewChatClient(executor, sessions)

	router.POST("/auth/signup", handleSignup(sessions))
	router.POST("/auth/login", handleLogin(sessions))
	router.POST("/auth/logout", handleLogout(sessions))
	router.GET("/auth/session", handleSessionState(sessions))
	router.GET("/auth/me", handleProfile(executor))

	api := router.Group("/api")
	api.GET("/tasks", handleTaskList(executor, tasks))
	api.POST("/tasks", handleTaskCreate(executor, tasks))
	api.GET("/tasks/:id", handleTaskGet(executor, tasks))
	api.PUT("/tasks/:id", handleTaskUpdate(executor, tasks))
	api.DELETE("/tasks/:id", handleTaskDelete(executor, tasks))
	api.PATCH("/tasks/:id/complete", handleTaskToggle(executor, tasks))
	api.POST("/chat", handleChat(executor, chat))

	return &Server{router: router}, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		requestID := uuid.NewString()
		contextGin.Header("X-Request-ID", requestID)
		startTime := time.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("request_id", requestID),
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func handleSignup(sessions *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var inbound credentialsPayload
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		user, registerErr := sessions.Register(contextGin, inbound.Email, inbound.Password)
		if registerErr != nil {
			writeError(contextGin, registerErr)
			return
		}
		contextGin.JSON(http.StatusCreated, user)
	}
}

func handleLogin(sessions *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var inbound credentialsPayload
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		result, loginErr := sessions.Login(contextGin, inbound.Email, inbound.Password)
		if loginErr != nil {
			writeError(contextGin, loginErr)
			return
		}
		// Tokens stay on this side of the boundary.
		contextGin.JSON(http.StatusOK, gin.H{
			"user":       result.User,
			"expires_in": result.ExpiresIn,
		})
	}
}

func handleLogout(sessions *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if logoutErr := sessions.Logout(contextGin); logoutErr != nil {
			writeError(contextGin, logoutErr)
			return
		}
		contextGin.Status(http.StatusNoContent)
	}
}

func handleSessionState(sessions *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		state := sessions.CurrentSession(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{
			"logged_in": state.LoggedIn,
			"subject":   state.Subject,
			"email":     state.Email,
		})
	}
}

func handleProfile(executor *apiclient.Executor) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		user, profileErr := executor.Profile(contextGin)
		if profileErr != nil {
			writeError(contextGin, profileErr)
			return
		}
		contextGin.JSON(http.StatusOK, user)
	}
}

func handleTaskList(executor *apiclient.Executor, tasks *apiclient.TaskClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		list, listErr := tasks.List(contextGin, subject)
		if listErr != nil {
			writeError(contextGin, listErr)
			return
		}
		if list == nil {
			list = []apiclient.Task{}
		}
		contextGin.JSON(http.StatusOK, list)
	}
}

func handleTaskCreate(executor *apiclient.Executor, tasks *apiclient.TaskClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		var inbound apiclient.TaskCreate
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		created, createErr := tasks.Create(contextGin, subject, inbound)
		if createErr != nil {
			writeError(contextGin, createErr)
			return
		}
		contextGin.JSON(http.StatusCreated, created)
	}
}

func handleTaskGet(executor *apiclient.Executor, tasks *apiclient.TaskClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		task, getErr := tasks.Get(contextGin, subject, contextGin.Param("id"))
		if getErr != nil {
			writeError(contextGin, getErr)
			return
		}
		contextGin.JSON(http.StatusOK, task)
	}
}

func handleTaskUpdate(executor *apiclient.Executor, tasks *apiclient.TaskClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		var inbound apiclient.TaskUpdate
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		updated, updateErr := tasks.Update(contextGin, subject, contextGin.Param("id"), inbound)
		if updateErr != nil {
			writeError(contextGin, updateErr)
			return
		}
		contextGin.JSON(http.StatusOK, updated)
	}
}

func handleTaskDelete(executor *apiclient.Executor, tasks *apiclient.TaskClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		if deleteErr := tasks.Delete(contextGin, subject, contextGin.Param("id")); deleteErr != nil {
			writeError(contextGin, deleteErr)
			return
		}
		contextGin.Status(http.StatusNoContent)
	}
}

func handleTaskToggle(executor *apiclient.Executor, tasks *apiclient.TaskClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		var inbound struct {
			IsCompleted bool `json:"is_completed"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		toggled, toggleErr := tasks.ToggleComplete(contextGin, subject, contextGin.Param("id"), inbound.IsCompleted)
		if toggleErr != nil {
			writeError(contextGin, toggleErr)
			return
		}
		contextGin.JSON(http.StatusOK, toggled)
	}
}

func handleChat(executor *apiclient.Executor, chat *apiclient.ChatClient) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		subject, subjectErr := executor.Subject(contextGin)
		if subjectErr != nil {
			writeError(contextGin, subjectErr)
			return
		}
		var inbound struct {
			Message        string `json:"message"`
			ConversationID string `json:"conversation_id"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		reply, sendErr := chat.Send(contextGin, subject, inbound.Message, inbound.ConversationID)
		if sendErr != nil {
			writeError(contextGin, sendErr)
			return
		}
		contextGin.JSON(http.StatusOK, reply)
	}
}

// writeError maps classified client errors onto proxy response statuses.
func writeError(contextGin *gin.Context, err error) {
	var classified *apiclient.Error
	if errors.As(err, &classified) {
		status := http.StatusInternalServerError
		switch classified.Kind {
		case apiclient.KindInvalidRequest:
			status = http.StatusBadRequest
		case apiclient.KindUnauthenticated, apiclient.KindAuthenticationFailed:
			status = http.StatusUnauthorized
		case apiclient.KindValidation:
			status = http.StatusUnprocessableEntity
		case apiclient.KindNetwork:
			status = http.StatusBadGateway
		case apiclient.KindServer:
			if classified.Status != 0 {
				status = classified.Status
			}
		}
		contextGin.AbortWithStatusJSON(status, gin.H{"error": classified.Message})
		return
	}

	var backendErr *session.BackendError
	if errors.As(err, &backendErr) {
		contextGin.AbortWithStatusJSON(backendErr.Status, gin.H{"error": backendErr.Message})
		return
	}
	if errors.Is(err, session.ErrBackendUnreachable) {
		contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "network error - could not reach server"})
		return
	}
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
