package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate/internal/api/handlers"
	"facegate/internal/config"
	"facegate/internal/core/admin"
	"facegate/internal/core/corpus"
	"facegate/internal/core/identity"
	"facegate/internal/core/imaging"
	"facegate/internal/core/model"
	"facegate/internal/core/training"
	"facegate/internal/db"
	"facegate/internal/db/repository"
	"facegate/internal/integrations/opencv"
	"facegate/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	enroll := flag.Bool("enroll", false, "enroll a new identity from the camera instead of serving the API")
	addPhotos := flag.String("add-photos", "", "capture additional camera photos for the given CPF")
	nome := flag.String("nome", "", "display name for -enroll")
	cpf := flag.String("cpf", "", "national ID for -enroll")
	nivel := flag.Int("nivel", 1, "access tier (1-3) for -enroll")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	repo := repository.NewSQLiteRepository(db.DB)

	store, err := identity.Load(cfg.Storage.UserTablePath(), cfg.Storage.TierTablePath())
	if err != nil {
		var serr *identity.SchemaError
		if errors.As(err, &serr) {
			log.Warnf("Enrollment table unreadable, starting empty: %v", serr)
		} else {
			log.Fatalf("Failed to load enrollment tables: %v", err)
		}
	}
	log.Infof("Loaded %d enrolled identities", store.Len())

	detector, err := opencv.NewCascadeDetector(cfg.Storage.CascadeFile)
	if err != nil {
		log.Fatalf("Failed to load face detector: %v", err)
	}
	defer detector.Close()

	quality := imaging.NewQualityFilter(cfg.Quality, detector, cfg.Detection.Quality)
	corpusMgr := corpus.NewManager(cfg.Storage.FacesDir, cfg.Recognition.SampleSize,
		detector, cfg.Detection.Capture, quality)
	builder := training.NewBuilder(cfg.Storage.FacesDir, cfg.Recognition.SampleSize,
		detector, cfg.Detection.Training, quality, imaging.NewAugmenter(cfg.Augmentation))
	modelMgr := model.NewManager(cfg.Storage.ModelPath(), cfg.Storage.LabelOrderPath(),
		builder, opencv.NewRecognizer)
	workflows := admin.New(store, corpusMgr, modelMgr, repo)

	if *enroll || *addPhotos != "" {
		if err := runCameraCapture(cfg, workflows, corpusMgr, *nome, *cpf, *nivel, *addPhotos); err != nil {
			log.Fatalf("Camera capture failed: %v", err)
		}
		return
	}

	router := gin.Default()
	router.Use(cors.Default())

	handlers.NewIdentityHandler(workflows, store, corpusMgr, cfg.Capture.MaxPhotos).RegisterRoutes(router)
	handlers.NewEventHandler(repo).RegisterRoutes(router)
	handlers.NewSystemHandler(repo, store, modelMgr, version).RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("Admin API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down admin API...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Forced shutdown: %v", err)
	}
	log.Info("Admin API stopped")
}

// cameraSource satisfies admin.PhotoSource with an interactive window
// session: the operator watches the live frame and presses 's' to capture,
// 'q' to stop.
func cameraSource(cfg *config.Config, corpusMgr *corpus.Manager) admin.PhotoSource {
	return func(token string) (int, error) {
		camera, err := opencv.OpenCamera(cfg.Capture.CameraIndex)
		if err != nil {
			return 0, err
		}
		defer camera.Close()

		window := opencv.NewWindow("Facegate - Captura de Fotos")
		defer window.Close()

		return corpusMgr.CaptureSession(token, camera, window, cfg.Capture.MaxPhotos)
	}
}

// runCameraCapture drives the interactive enrollment modes of the binary.
func runCameraCapture(cfg *config.Config, workflows *admin.Workflows, corpusMgr *corpus.Manager, nome, cpf string, nivel int, addPhotos string) error {
	source := cameraSource(cfg, corpusMgr)

	if addPhotos != "" {
		taken, err := workflows.AddPhotos(addPhotos, source)
		if err != nil {
			return err
		}
		log.Infof("Added %d photos for %s", taken, addPhotos)
		return nil
	}

	token, err := workflows.Enroll(admin.EnrollRequest{
		DisplayName: nome,
		NationalID:  cpf,
		Level:       nivel,
	}, source)
	if err != nil {
		return err
	}
	log.Infof("Enrolled %s (identity %s)", nome, token)
	return nil
}
