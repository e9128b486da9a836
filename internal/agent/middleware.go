package agent

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/command"
)

const claimsContextKey = "command_claims"

// VerifyCommand authenticates inbound command tokens. Every check
// failure is a 401 carrying the verifier's error text so the control
// plane can tell a replay from a mismatch.
func VerifyCommand(verifier *command.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := verifier.Verify(token)
		if err != nil {
			slog.Warn("Rejected command token",
				"error", err,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (*command.Claims, bool) {
	v, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*command.Claims)
	return claims, ok
}
