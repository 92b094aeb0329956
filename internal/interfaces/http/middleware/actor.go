package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
)

// Identity headers set by the upstream gateway
const (
	ActorIDHeader    = "X-Actor-ID"
	ActorRoleHeader  = "X-Actor-Role"
	ActorScopeHeader = "X-Actor-Scope"

	// MaxActorIDLength bounds header values copied into logs and spans.
	MaxActorIDLength = 128

	actorKey = "actor"
)

// Actor reads the caller identity from the gateway headers into the gin
// context and tags the request logger with it. Identity is taken as given;
// authorization beyond the current-holder rule happens upstream.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := keg.Actor{
			ID:              truncate(strings.TrimSpace(c.GetHeader(ActorIDHeader)), MaxActorIDLength),
			Role:            truncate(strings.TrimSpace(c.GetHeader(ActorRoleHeader)), MaxActorIDLength),
			AllowedKegScope: splitScope(c.GetHeader(ActorScopeHeader)),
		}
		c.Set(actorKey, actor)

		if actor.ID != "" {
			ctx, _ := logger.WithActorID(c.Request.Context(), logger.FromContext(c.Request.Context()), actor.ID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// GetActor returns the actor stored by Actor, or a zero Actor
func GetActor(c *gin.Context) keg.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(keg.Actor); ok {
			return actor
		}
	}
	return keg.Actor{}
}

func splitScope(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	scope := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			scope = append(scope, p)
		}
	}
	return scope
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
