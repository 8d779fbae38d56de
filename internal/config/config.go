package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string         `json:"log_level" yaml:"log_level"`
	LogFormat string         `json:"log_format" yaml:"log_format"`
	Scoring   ScoringConfig  `json:"scoring" yaml:"scoring"`
	Catalog   CatalogConfig  `json:"catalog" yaml:"catalog"`
	Workers   WorkersConfig  `json:"workers" yaml:"workers"`
	Ingest    IngestConfig   `json:"ingest" yaml:"ingest"`
	API       APIConfig      `json:"api" yaml:"api"`
	Storage   StorageConfig  `json:"storage" yaml:"storage"`
	Detector  DetectorConfig `json:"detector" yaml:"detector"`
	Reports   ReportsConfig  `json:"reports" yaml:"reports"`
	Vehicles  VehiclesConfig `json:"vehicles" yaml:"vehicles"`
}

type ScoringConfig struct {
	ConfidenceThreshold     float64              `json:"confidence_threshold" yaml:"confidence_threshold"`
	DebounceWindow          time.Duration        `json:"debounce_window" yaml:"debounce_window"`
	DefaultLimitKPH         *int                 `json:"default_limit_kph" yaml:"default_limit_kph"`
	OverspeedToleranceKPH   float64              `json:"overspeed_tolerance_kph" yaml:"overspeed_tolerance_kph"`
	Weights                 WeightsConfig        `json:"weights" yaml:"weights"`
	PenaltyFactor           float64              `json:"penalty_factor" yaml:"penalty_factor"`
	Severity                SeverityConfig       `json:"severity" yaml:"severity"`
	RecommendationThreshold float64              `json:"recommendation_threshold" yaml:"recommendation_threshold"`
	Recommendations         []RecommendationRule `json:"recommendations" yaml:"recommendations"`
	FallbackRecommendation  string               `json:"fallback_recommendation" yaml:"fallback_recommendation"`
}

// Clone returns a copy that shares no memory with s.
func (s ScoringConfig) Clone() ScoringConfig {
	out := s
	if s.DefaultLimitKPH != nil {
		v := *s.DefaultLimitKPH
		out.DefaultLimitKPH = &v
	}
	out.Recommendations = append([]RecommendationRule(nil), s.Recommendations...)
	return out
}

// WeightsConfig holds category weights; they must sum to 100.
type WeightsConfig struct {
	Braking         float64 `json:"braking" yaml:"braking"`
	SpeedCompliance float64 `json:"speed_compliance" yaml:"speed_compliance"`
	Acceleration    float64 `json:"acceleration" yaml:"acceleration"`
	Cornering       float64 `json:"cornering" yaml:"cornering"`
	SignCompliance  float64 `json:"sign_compliance" yaml:"sign_compliance"`
}

func (w WeightsConfig) Sum() float64 {
	return w.Braking + w.SpeedCompliance + w.Acceleration + w.Cornering + w.SignCompliance
}

type SeverityConfig struct {
	HardThresholdMPS2        float64 `json:"hard_threshold_mps2" yaml:"hard_threshold_mps2"`
	LateralThresholdMPS2     float64 `json:"lateral_threshold_mps2" yaml:"lateral_threshold_mps2"`
	DefaultCurveSeverity     float64 `json:"default_curve_severity" yaml:"default_curve_severity"`
	DefaultEventSeverity     float64 `json:"default_event_severity" yaml:"default_event_severity"`
	OverspeedReferenceKPH    float64 `json:"overspeed_reference_kph" yaml:"overspeed_reference_kph"`
	OverspeedSevereExcessKPH float64 `json:"overspeed_severe_excess_kph" yaml:"overspeed_severe_excess_kph"`
	ViolationSevereExcessKPH float64 `json:"violation_severe_excess_kph" yaml:"violation_severe_excess_kph"`
}

// RecommendationRule emits Message when the category score falls below
// Threshold. A zero Threshold uses ScoringConfig.RecommendationThreshold.
type RecommendationRule struct {
	Category  string  `json:"category" yaml:"category"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Message   string  `json:"message" yaml:"message"`
}

type CatalogConfig struct {
	Path string `json:"path" yaml:"path"`
}

// WorkersConfig sizes the scoring pool. A trip id seen again within
// ResubmitCooldown is skipped; zero disables the check.
type WorkersConfig struct {
	Count            int           `json:"count" yaml:"count"`
	ResubmitCooldown time.Duration `json:"resubmit_cooldown" yaml:"resubmit_cooldown"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
	Spool         SpoolConfig `json:"spool" yaml:"spool"`
}

type RESTConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Addr         string `json:"addr" yaml:"addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// SpoolConfig polls a directory for trip files dropped by uploaders.
type SpoolConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Dir      string        `json:"dir" yaml:"dir"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// APIConfig configures the query API. ScoreRateLimit caps synchronous
// POST /score calls per client IP per minute; zero disables the limit.
type APIConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Addr           string   `json:"addr" yaml:"addr"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins"`
	ScoreRateLimit int      `json:"score_rate_limit" yaml:"score_rate_limit"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

// DetectorConfig points at a remote sign inference service.
type DetectorConfig struct {
	Endpoint            string        `json:"endpoint" yaml:"endpoint"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	Concurrency         int           `json:"concurrency" yaml:"concurrency"`
}

type ReportsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type VehiclesConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultWeights() WeightsConfig {
	return WeightsConfig{Braking: 25, SpeedCompliance: 30, Acceleration: 20, Cornering: 15, SignCompliance: 10}
}

func DefaultSeverity() SeverityConfig {
	return SeverityConfig{
		HardThresholdMPS2:        4.0,
		LateralThresholdMPS2:     4.0,
		DefaultCurveSeverity:     0.6,
		DefaultEventSeverity:     0.5,
		OverspeedReferenceKPH:    50,
		OverspeedSevereExcessKPH: 30,
		ViolationSevereExcessKPH: 30,
	}
}

func DefaultRecommendations() []RecommendationRule {
	return []RecommendationRule{
		{Category: "braking", Message: "Maintain a larger following distance to avoid hard braking. Try to anticipate stops 3-4 seconds ahead."},
		{Category: "braking", Threshold: 85, Message: "Look further ahead to anticipate traffic slowdowns and brake more gradually."},
		{Category: "speed_compliance", Message: "Significantly exceeding safe speeds is dangerous. Use cruise control to maintain steady speeds."},
		{Category: "acceleration", Message: "Smooth acceleration saves fuel and reduces wear. Try to take 5+ seconds to reach cruising speed."},
		{Category: "cornering", Message: "Slow down before entering curves, not during. Reduce speed to a comfortable level before the turn."},
		{Category: "sign_compliance", Message: "Watch your speed after passing speed limit signs. It takes time to adjust, so start slowing early."},
	}
}

const defaultFallback = "Excellent driving! Keep up the safe habits."

func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		ConfidenceThreshold:     0.5,
		DebounceWindow:          1500 * time.Millisecond,
		OverspeedToleranceKPH:   5,
		Weights:                 DefaultWeights(),
		PenaltyFactor:           12,
		Severity:                DefaultSeverity(),
		RecommendationThreshold: 70,
		Recommendations:         DefaultRecommendations(),
		FallbackRecommendation:  defaultFallback,
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Scoring:   DefaultScoring(),
		Workers:   WorkersConfig{Count: 4, ResubmitCooldown: 30 * time.Second},
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080", MaxBodyBytes: 8 << 20},
			Kafka:         KafkaConfig{Enabled: false, Topic: "trips", GroupID: "tripscore"},
			Spool:         SpoolConfig{Enabled: false, Dir: "spool", Interval: 2 * time.Second},
		},
		API:      APIConfig{Enabled: true, Addr: ":8081", ScoreRateLimit: 120},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:tripscore.db?_pragma=busy_timeout(5000)"},
		Detector: DetectorConfig{Timeout: 10 * time.Second, ConfidenceThreshold: 0.5, Concurrency: 4},
		Reports:  ReportsConfig{StoreLimit: 1000},
		Vehicles: VehiclesConfig{StoreLimit: 5000},
	}
}

// Load reads a YAML or JSON config file. An empty path yields defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		applyEnv(cfg)
		applyDefaults(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRIPSCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRIPSCORE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("TRIPSCORE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("TRIPSCORE_KAFKA_BROKERS"); v != "" {
		brokers := make([]string, 0)
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Ingest.Kafka.Brokers = brokers
	}
	if v := os.Getenv("TRIPSCORE_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("TRIPSCORE_DETECTOR_ENDPOINT"); v != "" {
		cfg.Detector.Endpoint = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Scoring.DebounceWindow < 0 {
		cfg.Scoring.DebounceWindow = 0
	}
	if cfg.Scoring.Weights == (WeightsConfig{}) {
		cfg.Scoring.Weights = DefaultWeights()
	}
	if cfg.Scoring.PenaltyFactor <= 0 {
		cfg.Scoring.PenaltyFactor = 12
	}
	if cfg.Scoring.Severity == (SeverityConfig{}) {
		cfg.Scoring.Severity = DefaultSeverity()
	}
	if cfg.Scoring.RecommendationThreshold <= 0 {
		cfg.Scoring.RecommendationThreshold = 70
	}
	if len(cfg.Scoring.Recommendations) == 0 {
		cfg.Scoring.Recommendations = DefaultRecommendations()
	}
	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Ingest.Spool.Interval <= 0 {
		cfg.Ingest.Spool.Interval = 2 * time.Second
	}
	if cfg.Ingest.REST.MaxBodyBytes <= 0 {
		cfg.Ingest.REST.MaxBodyBytes = 8 << 20
	}
	if cfg.Detector.Timeout <= 0 {
		cfg.Detector.Timeout = 10 * time.Second
	}
	if cfg.Detector.Concurrency <= 0 {
		cfg.Detector.Concurrency = 4
	}
	if cfg.Reports.StoreLimit <= 0 {
		cfg.Reports.StoreLimit = 1000
	}
	if cfg.Vehicles.StoreLimit <= 0 {
		cfg.Vehicles.StoreLimit = 5000
	}
}

var knownCategories = map[string]struct{}{
	"braking":          {},
	"speed_compliance": {},
	"acceleration":     {},
	"cornering":        {},
	"sign_compliance":  {},
}

func ValidateScoring(s ScoringConfig) error {
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return errors.New("scoring.confidence_threshold must be within [0,1]")
	}
	if s.DebounceWindow < 0 {
		return errors.New("scoring.debounce_window must be >= 0")
	}
	if s.DefaultLimitKPH != nil && *s.DefaultLimitKPH <= 0 {
		return errors.New("scoring.default_limit_kph must be > 0 when set")
	}
	if s.OverspeedToleranceKPH < 0 {
		return errors.New("scoring.overspeed_tolerance_kph must be >= 0")
	}
	w := s.Weights
	for _, v := range []float64{w.Braking, w.SpeedCompliance, w.Acceleration, w.Cornering, w.SignCompliance} {
		if v < 0 {
			return errors.New("scoring.weights must be non-negative")
		}
	}
	if math.Abs(w.Sum()-100) > 1e-6 {
		return fmt.Errorf("scoring.weights must sum to 100, got %.2f", w.Sum())
	}
	if s.PenaltyFactor <= 0 {
		return errors.New("scoring.penalty_factor must be > 0")
	}
	sev := s.Severity
	if sev.HardThresholdMPS2 <= 0 || sev.LateralThresholdMPS2 <= 0 {
		return errors.New("scoring.severity thresholds must be > 0")
	}
	if sev.OverspeedSevereExcessKPH <= 0 || sev.ViolationSevereExcessKPH <= 0 {
		return errors.New("scoring.severity excess scales must be > 0")
	}
	for i, rule := range s.Recommendations {
		if _, ok := knownCategories[rule.Category]; !ok {
			return fmt.Errorf("scoring.recommendations[%d]: unknown category %q", i, rule.Category)
		}
		if strings.TrimSpace(rule.Message) == "" {
			return fmt.Errorf("scoring.recommendations[%d]: empty message", i)
		}
	}
	return nil
}

func Validate(cfg *Config) error {
	if err := ValidateScoring(cfg.Scoring); err != nil {
		return err
	}
	if cfg.API.ScoreRateLimit < 0 {
		return errors.New("api.score_rate_limit must be >= 0")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.Spool.Enabled && cfg.Ingest.Spool.Dir == "" {
		return errors.New("ingest.spool.dir required when ingest.spool.enabled is true")
	}
	if t := cfg.Detector.ConfidenceThreshold; t < 0 || t > 1 {
		return errors.New("detector.confidence_threshold must be within [0,1]")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q not supported", cfg.Storage.Driver)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

// Update validates cfg, persists it when the manager is file backed, and
// swaps it in.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
