package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/facility-checkin/internal/config"
	"github.com/iliyamo/facility-checkin/internal/database"
	"github.com/iliyamo/facility-checkin/internal/handler"
	"github.com/iliyamo/facility-checkin/internal/middleware"
	"github.com/iliyamo/facility-checkin/internal/queue"
	"github.com/iliyamo/facility-checkin/internal/repository"
	"github.com/iliyamo/facility-checkin/internal/router"
	"github.com/iliyamo/facility-checkin/internal/snapshot"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Redis backs rate limiting and the board response cache.  A nil
	// client disables both and the service degrades gracefully.
	rdb := config.NewRedisClient()

	sessions := repository.NewLaneSessionRepo(db)
	customers := repository.NewCustomerRepo(db)
	resources := repository.NewResourceRepo(db)
	intents := repository.NewPaymentIntentRepo(db)
	visits := repository.NewVisitRepo(db)
	waitlist := repository.NewWaitlistRepo(db)
	checkouts := repository.NewCheckoutRepo(db)
	audits := repository.NewAuditRepo(db)
	staff := repository.NewStaffRepo(db)
	tokens := repository.NewTokenRepo(db)

	snapshots := snapshot.NewBuilder(sessions, customers, intents, visits)

	authH := handler.NewAuthHandler(cfg, staff, tokens)
	laneH := handler.NewLaneHandler(sessions, customers, resources, intents, visits, waitlist, snapshots)
	checkoutH := handler.NewCheckoutHandler(checkouts, visits, resources, customers, waitlist, audits)
	boardH := handler.NewBoardHandler(resources, waitlist)
	customerH := handler.NewCustomerHandler(customers)

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterLane(e, laneH, cfg.JWTSecret)
	router.RegisterCheckout(e, checkoutH, cfg.JWTSecret)
	router.RegisterBoard(e, boardH, customerH, cfg.JWTSecret,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	// Background consumer feeding the desk activity log from the
	// checkout.events queue.
	go func() {
		if err := queue.StartCheckoutConsumer(); err != nil {
			log.Printf("checkout-consumer: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
