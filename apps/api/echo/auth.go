package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

var (
	contextTokenKey = "actorToken"
	contextActorKey = "actor"
	tokenAudience   = "cdl-trainer"
)

// newJWTConfig returns the JWT auth middleware config.
// Tokens are issued by the account service with the shared secret key.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Role  walkthrough.Role `json:"role"`
	Org   string           `json:"org,omitempty"`
	Email string           `json:"email,omitempty"`
}

// GetActorClaims returns the claims identifying actor.
func GetActorClaims(conf *core.Config, actor walkthrough.Actor) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   actor.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role:  actor.Role,
		Org:   actor.OrganizationID,
		Email: actor.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := newJWTConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (c Claims) actor() walkthrough.Actor {
	return walkthrough.Actor{
		ID:             c.Subject,
		Role:           c.Role,
		OrganizationID: c.Org,
		Email:          c.Email,
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextActor returns the actor set by actorMiddleware.
func getContextActor(ctx echo.Context) (walkthrough.Actor, error) {
	if actor, ok := ctx.Get(contextActorKey).(walkthrough.Actor); ok {
		return actor, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return walkthrough.Actor{}, err
	}
	return claims.actor(), nil
}
