package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/middleware"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON answers with body. Auth responses carry tokens, so none of them
// may be cached.
func writeJSON(c *gin.Context, status int, body any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, body)
}

// writeError maps err through edgeauth.HTTPStatus and edgeauth.PublicMessage.
// Transient failures carry Retry-After.
func writeError(c *gin.Context, err error) {
	if edgeauth.Retryable(err) {
		c.Header("Retry-After", middleware.RetryAfter)
	}
	writeJSON(c, edgeauth.HTTPStatus(err), errorBody{Error: edgeauth.PublicMessage(err)})
}

// adapt runs a net/http middleware as a gin handler. The gin chain continues
// only when mw calls its next handler, and it continues with the request mw
// passed on, so context values set by mw reach the route handler.
func adapt(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		mw(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}
