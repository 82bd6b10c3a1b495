package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root application configuration. It is constructed once at
// startup and passed by reference into each component; nothing reads these
// values as ambient globals.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Recognition  RecognitionConfig  `mapstructure:"recognition"`
	Quality      QualityConfig      `mapstructure:"quality"`
	Augmentation AugmentationConfig `mapstructure:"augmentation"`
	Capture      CaptureConfig      `mapstructure:"capture"`
	Kiosk        KioskConfig        `mapstructure:"kiosk"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
}

// ServerConfig holds settings for the admin HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds the SQLite event database settings.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig holds the on-disk layout of the enrollment data.
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	FacesDir     string `mapstructure:"faces_dir"`     // one subdirectory per identity token
	ModelDir     string `mapstructure:"model_dir"`     // modelo_lbph.yml + mapeamento_ids.json
	UsersDir     string `mapstructure:"users_dir"`     // userData.json + validation.json
	DocumentsDir string `mapstructure:"documents_dir"` // nivel_1 / nivel_2 / nivel_3
	CascadeFile  string `mapstructure:"cascade_file"`  // Haar cascade XML
}

// DetectParams are the tunable knobs of one detector pass.
type DetectParams struct {
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	MinSize      int     `mapstructure:"min_size"`
}

// DetectionConfig carries the detector tunings the system uses. Training is
// stricter than live on purpose: precision over recall in the training
// corpus, recall over precision in front of the camera.
type DetectionConfig struct {
	Live     DetectParams `mapstructure:"live"`
	Training DetectParams `mapstructure:"training"`
	Quality  DetectParams `mapstructure:"quality"`
	Capture  DetectParams `mapstructure:"capture"`
}

// RecognitionConfig holds the decision-engine tunables.
type RecognitionConfig struct {
	ConfidenceThreshold   float64 `mapstructure:"confidence_threshold"`    // LBPH distance; smaller is better, strict <
	MinConsecutiveMatches int     `mapstructure:"min_consecutive_matches"` // debounce
	GrantDelaySeconds     float64 `mapstructure:"grant_delay_seconds"`     // timed hold after debounce
	MinFaceSize           int     `mapstructure:"min_face_size"`           // pixels, smaller boxes are ignored
	SampleSize            int     `mapstructure:"sample_size"`             // canonical square training resolution
}

// QualityConfig holds the image quality filter thresholds.
type QualityConfig struct {
	MinBrightness float64 `mapstructure:"min_brightness"`
	MaxBrightness float64 `mapstructure:"max_brightness"`
	MinContrast   float64 `mapstructure:"min_contrast"`
}

// AugmentationConfig holds the training-set augmentation knobs.
type AugmentationConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	RotationDegrees  float64 `mapstructure:"rotation_degrees"`
	BrightnessFactor float64 `mapstructure:"brightness_factor"`
	ContrastFactor   float64 `mapstructure:"contrast_factor"`
	NoiseSigma       float64 `mapstructure:"noise_sigma"`
	NoiseSeed        int64   `mapstructure:"noise_seed"`
}

// CaptureConfig holds photo capture session settings.
type CaptureConfig struct {
	MaxPhotos   int `mapstructure:"max_photos"`
	CameraIndex int `mapstructure:"camera_index"`
}

// KioskConfig holds live recognition kiosk settings.
type KioskConfig struct {
	DevMode bool `mapstructure:"dev_mode"` // skip recognition, open Nivel 3 directly
}

// MQTTConfig holds settings for the optional grant-event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// Well-known file names inside the storage directories. They are wire format
// shared with existing installations and must not change.
const (
	UserTableFile  = "userData.json"
	TierTableFile  = "validation.json"
	ModelFile      = "modelo_lbph.yml"
	LabelOrderFile = "mapeamento_ids.json"
)

// UserTablePath returns the path of the identity table.
func (s *StorageConfig) UserTablePath() string {
	return filepath.Join(s.UsersDir, UserTableFile)
}

// TierTablePath returns the path of the tier membership table.
func (s *StorageConfig) TierTablePath() string {
	return filepath.Join(s.UsersDir, TierTableFile)
}

// ModelPath returns the path of the persisted classifier state.
func (s *StorageConfig) ModelPath() string {
	return filepath.Join(s.ModelDir, ModelFile)
}

// LabelOrderPath returns the path of the label-order sidecar.
func (s *StorageConfig) LabelOrderPath() string {
	return filepath.Join(s.ModelDir, LabelOrderFile)
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("db.file", "data/facegate.db")

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.faces_dir", "data/faces")
	v.SetDefault("storage.model_dir", "data/Modelo_Treinamento")
	v.SetDefault("storage.users_dir", "data/Usuarios_Cadastrados")
	v.SetDefault("storage.documents_dir", "data/documentos")
	v.SetDefault("storage.cascade_file", "models/haarcascade_frontalface_default.xml")

	// Live recognition favours recall; the engine's debounce compensates.
	v.SetDefault("detection.live.scale_factor", 1.1)
	v.SetDefault("detection.live.min_neighbors", 6)
	v.SetDefault("detection.live.min_size", 80)
	// Training favours precision: higher neighbor count, larger faces only.
	v.SetDefault("detection.training.scale_factor", 1.1)
	v.SetDefault("detection.training.min_neighbors", 8)
	v.SetDefault("detection.training.min_size", 100)
	// Quality re-check inside an already-cropped face: fast and loose.
	v.SetDefault("detection.quality.scale_factor", 1.2)
	v.SetDefault("detection.quality.min_neighbors", 3)
	v.SetDefault("detection.quality.min_size", 50)
	// Capture uses the training tuning so stored photos survive the builder.
	v.SetDefault("detection.capture.scale_factor", 1.1)
	v.SetDefault("detection.capture.min_neighbors", 8)
	v.SetDefault("detection.capture.min_size", 100)

	v.SetDefault("recognition.confidence_threshold", 50.0)
	v.SetDefault("recognition.min_consecutive_matches", 2)
	v.SetDefault("recognition.grant_delay_seconds", 3.0)
	v.SetDefault("recognition.min_face_size", 80)
	v.SetDefault("recognition.sample_size", 200)

	v.SetDefault("quality.min_brightness", 40.0)
	v.SetDefault("quality.max_brightness", 200.0)
	v.SetDefault("quality.min_contrast", 15.0)

	v.SetDefault("augmentation.enabled", true)
	v.SetDefault("augmentation.rotation_degrees", 3.0)
	v.SetDefault("augmentation.brightness_factor", 1.1)
	v.SetDefault("augmentation.contrast_factor", 0.95)
	v.SetDefault("augmentation.noise_sigma", 5.0)
	v.SetDefault("augmentation.noise_seed", 42)

	v.SetDefault("capture.max_photos", 10)
	v.SetDefault("capture.camera_index", 0)

	v.SetDefault("kiosk.dev_mode", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic", "facegate/access")
}

// ensureDirectories makes sure all required directories exist.
func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.Storage.DataDir,
		cfg.Storage.FacesDir,
		cfg.Storage.UsersDir,
	}
	if cfg.DB.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.DB.File))
	}
	if cfg.Log.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Log.File))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
