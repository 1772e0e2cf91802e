// Command token mints a session token for local development and testing.
package main

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/models"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	_ = godotenv.Load()

	var (
		userID = flag.String("user", "", "user id (random when empty)")
		role   = flag.String("role", string(models.RoleInspector), "CONTRACTOR, INSPECTOR or ADMIN")
		name   = flag.String("name", "", "display name used as the default author")
		secret = flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC signing secret (defaults to $JWT_SECRET)")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	p := auth.Principal{
		Role: models.Role(strings.ToUpper(*role)),
		Name: *name,
	}
	if !p.Role.Valid() {
		log.Fatal().Str("role", *role).Msg("unknown role")
	}
	if *secret == "" {
		log.Fatal().Msg("a signing secret is required (-secret or JWT_SECRET)")
	}

	p.UserID = uuid.New()
	if *userID != "" {
		id, err := uuid.Parse(*userID)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid user id")
		}
		p.UserID = id
	}

	token, err := auth.NewAccessToken(p, *secret, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	log.Info().Str("user_id", p.UserID.String()).Str("role", string(p.Role)).Dur("ttl", *ttl).Msg("token issued")
	fmt.Println(token)
}
