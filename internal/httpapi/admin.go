package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/edgeauth/metrics/export/internaldefs"
	"github.com/MrEthical07/edgeauth/middleware"
	"github.com/MrEthical07/edgeauth/session"
)

type sessionResponse struct {
	UserID    string       `json:"userId"`
	Role      session.Role `json:"role"`
	IssuedAt  time.Time    `json:"issuedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func (s *Server) handleSession(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	writeJSON(c, http.StatusOK, sessionResponse{
		UserID:    claims.UserID,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}

type overviewResponse struct {
	Counters     map[string]uint64 `json:"counters"`
	AuditDropped uint64            `json:"auditDropped"`
	StoreUp      bool              `json:"storeUp"`
}

func (s *Server) handleAdminOverview(c *gin.Context) {
	snap := s.engine.MetricsSnapshot()
	out := overviewResponse{
		Counters:     make(map[string]uint64, len(internaldefs.CounterDefs)),
		AuditDropped: s.engine.AuditDropped(),
		StoreUp:      s.engine.Ping(c.Request.Context()) == nil,
	}
	for _, def := range internaldefs.CounterDefs {
		out.Counters[def.Name] = snap.Counters[def.ID]
	}
	writeJSON(c, http.StatusOK, out)
}

func (s *Server) handleAdminRevoke(c *gin.Context) {
	removed, err := s.engine.RevokeAll(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"removed": removed})
}
