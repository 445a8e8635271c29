package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"share_server/server/common/transport/httpresp"
)

const (
	ctxUserID = "auth_user_id"
	// QueryToken is accepted in place of the Authorization header on
	// websocket upgrades, where browsers cannot set headers.
	QueryToken = "token"
)

type tokenAuth interface {
	UserIDFromToken(token string) (int64, error)
}

// AuthRequired rejects the request with 401 unless it carries a valid bearer
// token, and stores the caller's user id in the gin context.
func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return authenticate(auth, false)
}

// AuthRequiredOrQuery is AuthRequired that also accepts ?token=.
func AuthRequiredOrQuery(auth tokenAuth) gin.HandlerFunc {
	return authenticate(auth, true)
}

func authenticate(auth tokenAuth, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok && allowQuery {
			token = strings.TrimSpace(c.Query(QueryToken))
			ok = token != ""
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
			return
		}
		userID, err := auth.UserIDFromToken(token)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// UserIDFromContext returns the id stored by AuthRequired.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	raw, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := raw.(int64)
	return id, ok && id > 0
}
