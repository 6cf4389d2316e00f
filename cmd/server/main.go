package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"turbodriver/internal/api"
	"turbodriver/internal/geo"
	"turbodriver/internal/identity"
	"turbodriver/internal/storage"
	"turbodriver/internal/tracking"
)

const busChangesChannel = "bus:changes"

func main() {
	addr := envOrDefault("HTTP_ADDR", ":8080")
	env := envOrDefault("ENV", "dev")
	cfg := tracking.LoadConfig()

	deps := initDeps(context.Background(), env, cfg)

	stream := tracking.NewChangeStream()
	store := tracking.NewStore(deps.persistence, deps.geo, stream)
	registry := tracking.NewRegistry()
	broadcaster := tracking.NewBroadcaster(registry, stream)
	throttle := tracking.NewThrottle(cfg.ThrottleMinInterval, cfg.ThrottleMinDistance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if deps.redisClient != nil {
		wireRemoteFanOut(ctx, deps.redisClient, stream)
	}

	go broadcaster.Run(ctx)
	if deps.audit != nil {
		go deps.audit.Run(ctx, stream, func(err error) { log.Printf("audit log: %v", err) })
	}

	if cfg.WorkersSingleton {
		etaWorker := tracking.NewETAWorker(store, deps.routes, broadcaster, cfg)
		staleWorker := tracking.NewStalenessWorker(store, cfg, etaWorker.Evict)
		go staleWorker.Run(ctx)
		go etaWorker.Run(ctx)
	}

	handler := api.NewHandler(store, deps.geo, registry, broadcaster, throttle, deps.assignments, deps.routes, deps.verifier, cfg)

	r := chi.NewRouter()
	api.AttachRoutes(r, handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("tracking API listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// wireRemoteFanOut mirrors every locally-published BusChanged event
// onto a Redis channel, and re-injects events PUBLISHed by other
// instances back into the local stream, realizing the multi-instance
// fan-out spec §9 calls for without requiring it for a single-instance
// deployment. The SUBSCRIBE loop reconnects with the same exponential
// backoff spec §5 specifies for change-stream readers.
func wireRemoteFanOut(ctx context.Context, client *redis.Client, stream *tracking.ChangeStream) {
	stream.SetPublishHook(func(evt tracking.BusChanged) {
		raw, err := json.Marshal(evt)
		if err != nil {
			log.Printf("bus:changes marshal failed: %v", err)
			return
		}
		if err := client.Publish(ctx, busChangesChannel, raw).Err(); err != nil {
			log.Printf("bus:changes publish failed: %v", err)
		}
	})

	go func() {
		bo := tracking.NewBackoff()
		for {
			if ctx.Err() != nil {
				return
			}
			sub := client.Subscribe(ctx, busChangesChannel)
			ch := sub.Channel()
			bo.Reset()
			for msg := range ch {
				var evt tracking.BusChanged
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					log.Printf("bus:changes decode failed: %v", err)
					continue
				}
				stream.Inject(evt)
			}
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			delay := bo.Next()
			log.Printf("bus:changes subscription lost, reconnecting in %s", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// deps bundles the optional external-storage components wired up
// depending on what's reachable, generalizing the teacher's
// cmd/server.initStore fallback chain (in-memory when no database or
// Redis is configured, real backends in prod).
type deps struct {
	persistence tracking.Persistence
	geo         tracking.GeoIndex
	routes      tracking.RouteSource
	assignments tracking.AssignmentSource
	verifier    identity.Verifier
	audit       *storage.AuditLogger
	redisClient *redis.Client
}

func initDeps(ctx context.Context, env string, cfg tracking.Config) deps {
	dbURL := os.Getenv("DATABASE_URL")
	redisURL := envOrDefault("REDIS_URL", "redis://redis:6379")

	d := deps{
		geo:         geo.NewInMemory(),
		routes:      tracking.NewMemRouteSource(),
		assignments: tracking.NewMemAssignmentSource(),
		verifier:    identity.NewInMemoryStore(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if dbURL != "" {
		pool, err := storage.DefaultPool(ctx, dbURL)
		if err != nil {
			log.Printf("database connection failed, falling back to in-memory: %v", err)
			if env == "prod" {
				log.Fatal("DATABASE_URL required in prod")
			}
		} else if err := storage.ApplySchema(ctx, pool); err != nil {
			log.Printf("schema init failed, falling back to in-memory: %v", err)
			if env == "prod" {
				log.Fatal("schema init required in prod")
			}
		} else {
			log.Printf("using PostgreSQL persistence")
			pg := storage.NewPostgres(pool)
			d.persistence = pg
			d.routes = pg
			d.assignments = pg
			d.verifier = identity.NewPostgresVerifier(storage.NewIdentityStore(pool))
			d.audit = storage.NewAuditLog(pool)
		}
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err == nil {
			client := redis.NewClient(opt)
			if err := client.Ping(ctx).Err(); err != nil {
				log.Printf("redis unreachable, geo fallback to in-memory: %v", err)
				if env == "prod" {
					log.Fatal("redis reachable required in prod")
				}
			} else {
				log.Printf("using Redis geo index")
				d.geo = geo.NewRedisIndex(client)
				d.redisClient = client
			}
		} else {
			log.Printf("redis URL parse error, geo fallback to in-memory: %v", err)
			if env == "prod" {
				log.Fatal("REDIS_URL parse failed in prod")
			}
		}
	}

	return d
}
