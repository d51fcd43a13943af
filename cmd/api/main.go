package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"fileshare/internal/config"
	"fileshare/internal/database"
	"fileshare/internal/middleware"
	"fileshare/internal/modules/auth"
	"fileshare/internal/modules/files"
	"fileshare/internal/modules/share"
	jwtsvc "fileshare/internal/pkg/jwt"
	"fileshare/internal/repository"
	"fileshare/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DSN)
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal(err)
	}

	store, err := storage.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatal(err)
	}
	previews := storage.NewPreviewCache()

	userRepo := repository.NewUserRepository(db)
	fileRepo := repository.NewFileRepository(db)
	shareRepo := repository.NewShareRepository(db)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	authService := auth.NewService(userRepo, j)
	authHandler := auth.NewHandler(authService)

	filesService := files.NewService(fileRepo, shareRepo, store, previews)
	filesHandler := files.NewHandler(filesService)

	shareService := share.NewService(fileRepo, shareRepo, userRepo, previews)
	shareHandler := share.NewHandler(shareService, cfg.BaseURL)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		// public
		authHandler.RegisterPublicRoutes(v1)

		// protected
		protected := v1.Group("/")
		protected.Use(middleware.JWTAuth(j))
		{
			authHandler.RegisterProtectedRoutes(protected)
			filesHandler.RegisterRoutes(protected)
			shareHandler.RegisterRoutes(protected)
		}
	}

	// link-gated preview pages, no auth
	shareHandler.RegisterPublicRoutes(r)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
