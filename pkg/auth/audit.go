package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// AuditLog represents a security audit event
type AuditLog struct {
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Action       string    `json:"action"`
	Method       string    `json:"method,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditLogger writes security audit events as structured log records
type AuditLogger struct {
	logger *observability.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuditLogger{logger: logger.WithField("component", "audit")}
}

// LogAction logs an audit event
func (al *AuditLogger) LogAction(ctx context.Context, log *AuditLog) error {
	if log.Action == "" {
		return fmt.Errorf("action is required")
	}
	if log.Status == "" {
		return fmt.Errorf("status is required")
	}

	log.CreatedAt = time.Now()

	entry := observability.UpdateLoggerWithTraceContext(ctx, al.logger).WithFields(map[string]interface{}{
		"action":     log.Action,
		"status":     log.Status,
		"ip_address": log.IPAddress,
		"user_agent": log.UserAgent,
	})
	if log.UserID != "" {
		entry = entry.WithField("user_id", log.UserID)
	}
	if log.Email != "" {
		entry = entry.WithField("email", log.Email)
	}
	if log.Method != "" {
		entry = entry.WithField("auth_method", log.Method)
	}
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}

	if log.Status == StatusSuccess {
		entry.Info("audit event")
	} else {
		entry.WithField("error_message", log.ErrorMessage).Warn("audit event")
	}
	return nil
}

// LogFromRequest creates an audit log from an HTTP request
func (al *AuditLogger) LogFromRequest(r *http.Request, action string, user *User, err error) error {
	log := &AuditLog{
		Action:    action,
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		Status:    StatusSuccess,
	}

	if user != nil {
		log.UserID = user.ID
		log.Email = user.Email
	}

	if err != nil {
		log.Status = StatusFailure
		log.ErrorMessage = err.Error()
	}

	return al.LogAction(r.Context(), log)
}

// ClientIP returns the originating client address of r
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Common audit action constants
const (
	ActionSignin         = "auth.signin"
	ActionSignup         = "auth.signup"
	ActionSSOLogin       = "auth.sso_login"
	ActionUserAdd        = "user.add"
	ActionProfileUpdate  = "user.profile_update"
	ActionPasswordUpdate = "user.password_update"
	ActionAPIKeyCreate   = "apikey.create"
	ActionAPIKeyDelete   = "apikey.delete"
	ActionSettingsUpdate = "settings.update"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)
