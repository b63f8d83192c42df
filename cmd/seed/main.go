// Command seed prints or applies the document store schema and can load a
// small demo data set through the domain services.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/mynews-app/service_layer/internal/app"
	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/config"
	"github.com/mynews-app/service_layer/internal/logging"
	"github.com/mynews-app/service_layer/internal/platform/migrations"
	"github.com/mynews-app/service_layer/services/friends"
	"github.com/mynews-app/service_layer/services/users"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "Optional .env file loaded before the environment")
		printSchema = flag.Bool("print-schema", false, "Print the SQL schema for pasting into a hosted SQL editor")
		apply       = flag.Bool("apply", false, "Apply the schema to MYNEWS_POSTGRES_DSN")
		demo        = flag.Bool("demo", false, "Load demo users, friendships and activity into the configured store")
	)
	flag.Parse()

	if err := run(*envFile, *printSchema, *apply, *demo); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string, printSchema, apply, demo bool) error {
	if !printSchema && !apply && !demo {
		flag.Usage()
		return nil
	}
	if printSchema {
		schema, err := migrations.Schema()
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		fmt.Print(schema)
	}
	if !apply && !demo {
		return nil
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New("seed", logging.Config{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	ctx := context.Background()

	if apply {
		if cfg.Store.PostgresDSN == "" {
			return fmt.Errorf("MYNEWS_POSTGRES_DSN is required to apply the schema")
		}
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := migrations.Apply(ctx, db.DB); err != nil {
			return err
		}
		log.Info("schema applied")
	}
	if demo {
		return seedDemo(ctx, cfg, log)
	}
	return nil
}

type demoUser struct {
	uid, username, email string
}

var demoUsers = []demoUser{
	{"demo-alice", "alice", "alice@example.com"},
	{"demo-bob", "bob", "bob@example.com"},
	{"demo-carol", "carol", "carol@example.com"},
}

var demoArticles = []article.Article{
	{
		Source:      article.Source{ID: "reuters", Name: "Reuters"},
		Title:       "Central bank holds rates steady",
		URL:         "https://www.reuters.example/markets/rates-hold",
		PublishedAt: "2024-06-03T09:00:00Z",
	},
	{
		Source:      article.Source{ID: "bbc-news", Name: "BBC News"},
		Title:       "Heatwave breaks June records",
		URL:         "https://www.bbc.example/news/heatwave",
		PublishedAt: "2024-06-03T11:30:00Z",
	},
}

func seedDemo(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	store, err := app.OpenStore(ctx, cfg.Store, log.Named("docstore"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a, err := app.New(ctx, cfg, store, log)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer store.Close()

	for _, u := range demoUsers {
		res := a.Users.Register(ctx, u.uid, u.username, u.email)
		switch res.State {
		case users.RegisterSuccess, users.RegisterAlreadyRegistered:
		default:
			return fmt.Errorf("register %s: %s %s", u.username, res.State, res.Message)
		}
	}

	for _, edge := range [][2]string{{"demo-alice", "bob"}, {"demo-alice", "carol"}, {"demo-bob", "alice"}} {
		res := a.Friends.AddFriend(ctx, edge[0], edge[1])
		if res.State != friends.AddFriendSuccess && res.State != friends.AddFriendAlreadyAdded {
			return fmt.Errorf("add friend %s -> %s: %s", edge[0], edge[1], res.State)
		}
	}

	thumbs, fire := "👍", "🔥"
	if _, err := a.Reactions.SetReaction(ctx, "demo-bob", demoArticles[0], &thumbs); err != nil {
		return err
	}
	if _, err := a.Reactions.SetReaction(ctx, "demo-carol", demoArticles[1], &fire); err != nil {
		return err
	}
	if _, err := a.Saved.Save(ctx, "demo-alice", demoArticles[1]); err != nil {
		return err
	}
	for _, art := range demoArticles {
		a.Goals.LogArticleRead(ctx, "demo-alice", art)
	}

	log.WithField("users", len(demoUsers)).Info("demo data loaded")
	return nil
}
