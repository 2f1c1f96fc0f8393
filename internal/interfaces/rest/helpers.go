package rest

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/interfaces/middleware"
	"github.com/tradedesk/backoffice/pkg/auth"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// GetUserFromContext extracts the authenticated user from gin.Context
func GetUserFromContext(c *gin.Context) *models.UserSession {
	userInterface, exists := c.Get(middleware.ContextKeyUser)
	if !exists {
		return nil
	}

	// The middleware stores auth.UserSession, convert to models.UserSession
	authUser := userInterface.(auth.UserSession)
	session := &models.UserSession{
		ID:    authUser.ID,
		Name:  authUser.Name,
		Roles: authUser.Roles,
	}
	if authUser.Email != "" {
		session.Email = &authUser.Email
	}
	return session
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	errorCode := errors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	response := gin.H{
		"error":   message,
		"message": message,
		"code":    errorCode,
		"data":    nil,
	}
	if details := errors.GetDetails(err); details != nil {
		response["details"] = details
	}
	c.JSON(code, response)
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// HandleGetEnvelope executes a read action and returns the result wrapped in a JSON key
// Response: { [key]: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}

// HandleCreateEnvelope executes a create action and returns the result wrapped + message
// Response: { "message": successMsg, [key]: result }
func HandleCreateEnvelope(c *gin.Context, key string, successMsg string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	response := gin.H{"message": successMsg}
	if key != "" {
		response[key] = result
	}
	c.JSON(http.StatusCreated, response)
}

// HandleUpdateEnvelope executes an update action and returns the result wrapped + message
// Response: { "message": successMsg, [key]: result }
func HandleUpdateEnvelope(c *gin.Context, key string, successMsg string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	response := gin.H{"message": successMsg}
	if key != "" {
		response[key] = result
	}
	c.JSON(http.StatusOK, response)
}
