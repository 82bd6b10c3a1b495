package main

import (
	"errors"
	"flag"
	"fmt"

	"facegate/internal/config"
	"facegate/internal/core/docs"
	"facegate/internal/core/engine"
	"facegate/internal/core/identity"
	"facegate/internal/core/imaging"
	"facegate/internal/core/model"
	"facegate/internal/core/training"
	"facegate/internal/db"
	"facegate/internal/db/repository"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/integrations/opencv"
	"facegate/internal/logger"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
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

	viewer := docs.NewViewer(cfg.Storage.DocumentsDir)

	if cfg.Kiosk.DevMode {
		log.Warn("Dev mode enabled: skipping recognition, opening highest tier")
		showDocuments(viewer, "Nivel 3")
		return
	}

	if err := runKiosk(cfg, store, repo, viewer); err != nil {
		log.Fatalf("Kiosk session failed: %v", err)
	}
}

// runKiosk trains or loads the model, opens the camera and drives the
// recognition session until a grant or an operator quit.
func runKiosk(cfg *config.Config, store *identity.Store, repo *repository.SQLiteRepository, viewer *docs.Viewer) error {
	detector, err := opencv.NewCascadeDetector(cfg.Storage.CascadeFile)
	if err != nil {
		return err
	}
	defer detector.Close()

	quality := imaging.NewQualityFilter(cfg.Quality, detector, cfg.Detection.Quality)
	augmenter := imaging.NewAugmenter(cfg.Augmentation)
	builder := training.NewBuilder(cfg.Storage.FacesDir, cfg.Recognition.SampleSize,
		detector, cfg.Detection.Training, quality, augmenter)
	modelMgr := model.NewManager(cfg.Storage.ModelPath(), cfg.Storage.LabelOrderPath(),
		builder, opencv.NewRecognizer)

	recognizer, labelOrder, err := modelMgr.EnsureReady(store.Tokens())
	if err != nil {
		if errors.Is(err, training.ErrNoTrainableData) {
			return fmt.Errorf("no enrolled faces to recognize, enroll someone first: %w", err)
		}
		return err
	}
	defer recognizer.Close()

	camera, err := opencv.OpenCamera(cfg.Capture.CameraIndex)
	if err != nil {
		return err
	}
	defer camera.Close()

	window := opencv.NewWindow("Facegate")
	defer window.Close()

	mqttClient := mqtt.NewClient(cfg.MQTT)
	if err := mqttClient.Start(); err != nil {
		log.Warnf("Continuing without MQTT: %v", err)
	}
	defer mqttClient.Stop()

	eng := engine.New(cfg.Recognition, cfg.Detection.Live, detector, recognizer, store, labelOrder)

	log.Info("Recognition session started")
	for {
		frame, err := camera.Read()
		if err != nil {
			return err
		}

		result, err := eng.Process(imaging.Grayscale(frame))
		if err != nil {
			return err
		}

		quit, err := window.ShowKiosk(frame, result.Boxes)
		if err != nil {
			return err
		}
		if quit {
			eng.Quit()
			log.Info("Session ended by operator")
			return nil
		}

		if result.Grant != nil {
			grant := result.Grant
			repo.RecordAccess(grant.NationalID, grant.DisplayName, grant.Tier, grant.Distance, grant.At)
			mqttClient.PublishGrant(grant)
			showDocuments(viewer, grant.Tier)
			return nil
		}
	}
}

// showDocuments prints the documents the granted tier may access.
func showDocuments(viewer *docs.Viewer, tier string) {
	documents, err := viewer.ListForTier(tier)
	if err != nil {
		log.Errorf("Failed to list documents: %v", err)
		return
	}
	if len(documents) == 0 {
		fmt.Printf("Nenhum documento disponivel para %s\n", tier)
		return
	}

	fmt.Printf("Documentos disponiveis (%s):\n", tier)
	for _, doc := range documents {
		fmt.Printf("  [%s] %s\n", doc.Folder, doc.Name)
	}
}
