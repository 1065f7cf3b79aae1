package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postengine/configs"
	"github.com/maheshrc27/postengine/internal/api/handlers"
	"github.com/maheshrc27/postengine/internal/api/middleware"
	"github.com/maheshrc27/postengine/internal/platforms"
	"github.com/maheshrc27/postengine/internal/queue"
	"github.com/maheshrc27/postengine/internal/repository"
	"github.com/maheshrc27/postengine/internal/scheduler"
	"github.com/maheshrc27/postengine/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)

	registry := platforms.NewRegistry(
		platforms.NewLinkedinAdapter(*cfg),
		platforms.NewTwitterAdapter(*cfg),
		platforms.NewInstagramAdapter(*cfg),
		platforms.NewThreadsAdapter(*cfg),
	)

	r2Service := service.NewR2Service(*cfg)
	mediaResolver := service.NewMediaResolver(r2Service)
	tokenGuard := service.NewTokenGuard(*cfg, connectionRepo)
	coordinator := service.NewPublishCoordinator(postRepo, connectionRepo, registry, tokenGuard, mediaResolver)

	dispatcher := queue.NewClient(asynqClient)
	adminService := service.NewAdminService(postRepo, dispatcher, scheduler.ClaimGrace)

	dueScheduler := scheduler.NewDueScheduler(postRepo, dispatcher)
	runtime, err := scheduler.NewRuntime(cfg.CronSchedule, dueScheduler.Tick)
	if err != nil {
		log.Fatalf("Invalid cron schedule %q: %v", cfg.CronSchedule, err)
	}
	runtime.Start()

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	admin := app.Group("/admin")
	admin.Use(authMiddleware.AdminAuth())

	sched := handlers.NewSchedulerHandler(runtime)
	admin.Post("/scheduler/start", sched.Start)
	admin.Post("/scheduler/stop", sched.Stop)
	admin.Post("/scheduler/restart", sched.Restart)
	admin.Put("/scheduler/schedule", sched.UpdateSchedule)
	admin.Get("/scheduler/status", sched.Status)

	post := handlers.NewPostHandler(postRepo, adminService)
	admin.Get("/posts", post.ListPosts)
	admin.Get("/posts/:id", post.GetPost)
	admin.Post("/posts/:id/publish", post.PublishNow)
	admin.Post("/posts/:id/retry", post.Retry)
	admin.Post("/posts/:id/repost", post.Repost)

	connection := handlers.NewConnectionHandler(connectionRepo)
	admin.Get("/connections", connection.ListConnections)

	worker := queue.NewWorker(coordinator)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, worker.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, runtime)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, runtime *scheduler.Runtime) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	runtime.Stop()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
