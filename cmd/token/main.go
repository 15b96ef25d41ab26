// Command token mints a signal-channel token for local testing and can seed
// a direct conversation for the user.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		user     = pflag.StringP("user", "u", "", "user id to put in the token")
		secret   = pflag.String("secret", os.Getenv("HUDDLE_AUTH_SECRET"), "HS256 signing secret")
		ttl      = pflag.Duration("ttl", auth.DefaultTTL, "token lifetime")
		with     = pflag.StringSlice("with", nil, "seed a direct conversation with this user")
		driver   = pflag.String("store", os.Getenv("HUDDLE_STORE_DRIVER"), "store driver used by --with")
		uri      = pflag.String("store-uri", os.Getenv("HUDDLE_STORE_URI"), "store connection string")
		database = pflag.String("store-db", "huddle", "store database name (mongo)")
	)
	pflag.Parse()

	uid, err := domain.ParseUserID(*user)
	if err != nil {
		log.Fatal().Err(err).Msg("--user")
	}
	j, err := auth.NewJWT(*secret, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("--secret")
	}
	token, err := j.Issue(uid)
	if err != nil {
		log.Fatal().Err(err).Msg("issue token")
	}
	fmt.Println(token)

	if len(*with) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := store.New(ctx, store.Config{Driver: *driver, URI: *uri, Database: *database})
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close(ctx)

	for _, peer := range *with {
		other, err := domain.ParseUserID(peer)
		if err != nil {
			log.Error().Err(err).Str("peer", peer).Msg("skip")
			continue
		}
		conv, err := st.FindOrCreateConversation(ctx, []domain.UserID{uid, other}, core.ConversationOptions{})
		if err != nil {
			log.Error().Err(err).Str("peer", peer).Msg("seed conversation")
			continue
		}
		log.Info().Str("conversation", string(conv.ID)).Str("peer", peer).Msg("conversation ready")
	}
}
