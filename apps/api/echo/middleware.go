package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

// actorMiddleware resolves the actor from the token claims. Tokens without a subject or a known role are refused.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		actor := claims.actor()
		if actor.ID == "" || !actor.Role.IsValid() {
			return errHttpForbidden
		}
		ctx.Set(contextActorKey, actor)
		return next(ctx)
	}
}

// roleMiddleware only lets through actors accepted by allowed.
func roleMiddleware(allowed func(walkthrough.Actor) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if !allowed(actor) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

var (
	authorMiddleware   = roleMiddleware(walkthrough.Actor.CanAuthor)
	reviewerMiddleware = roleMiddleware(walkthrough.Actor.CanReview)
)
