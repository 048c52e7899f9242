package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the runtime settings of the platform
type Config struct {
	Port             string
	DatabaseURL      string
	MaxOpenConns     int
	RedisAddr        string
	LayerCacheTTL    time.Duration
	MediaRoot        string
	PublicBaseURL    string
	MapboxAPIKey     string
	JWTSecret        string
	StaffUsers       map[string]string
	SMTP             SMTPConfig
	INatBaseURL      string
	WikipediaURL     string
	LayersConfigPath string
	Layers           Layers
}

// SMTPConfig holds outgoing mail settings
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	FromName string
}

// Layers maps well-known layer roles to document and space ids
type Layers struct {
	VegetationMap   int64    `json:"vegetation_map"`
	Suburbs         int64    `json:"suburbs"`
	GardensSource   int64    `json:"gardens_source"`
	Schools         int64    `json:"schools"`
	Cemeteries      int64    `json:"cemeteries"`
	Parks           int64    `json:"parks"`
	Rivers          int64    `json:"rivers"`
	Railway         int64    `json:"railway"`
	Centers         int64    `json:"centers"`
	Remnants        int64    `json:"remnants"`
	Bionet          int64    `json:"bionet"`
	BoundariesSpace int64    `json:"boundaries_space"`
	CityOutline     int64    `json:"city_outline_space"`
	MapStyle        int64    `json:"map_style"`
	PoorRivers      []string `json:"poor_quality_rivers"`
}

// DefaultLayers returns the layer ids of the production deployment
func DefaultLayers() Layers {
	return Layers{
		VegetationMap:   983172,
		Suburbs:         334434,
		GardensSource:   1,
		Schools:         983409,
		Cemeteries:      983426,
		Parks:           983479,
		Rivers:          983382,
		Railway:         2,
		Centers:         983491,
		Remnants:        983097,
		Bionet:          983134,
		BoundariesSpace: 983170,
		CityOutline:     988911,
		MapStyle:        3,
		PoorRivers: []string{
			"DIEP RIVER",
			"DIEPRIVIER",
			"EERSTE RIVER",
			"EERSTERIVIER",
			"ELSIESKRAAL",
			"ELSIESKRAAL CANAL",
			"extension of channel into Salt",
			"extension of Liesbeek into Salt",
			"KUILS RIVER",
			"KUILSRIVIER CHANNEL",
			"MOSSELBANK RIVER",
			"MOSSELBANKRIVIER",
			"SALT RIVER",
			"SAND RIVER",
			"SANDRIVIER",
			"SIR LOWRY'S PASS RIVER",
			"stream extension to Eerste River",
			"ZEEKOEVLEI",
			"ZEEKOEVLEI CANAL",
			"BIG LOTUS RIVER CANAL",
			"BIG LOTUS RIVER/NYANGA CANAL",
		},
	}
}

// Load reads the configuration from the environment and the layers file
func Load() (*Config, error) {
	cfg := &Config{
		Port:             GetEnv("PORT", "8080"),
		DatabaseURL:      GetEnv("DATABASE_URL", ""),
		MaxOpenConns:     GetEnvInt("DB_MAX_OPEN_CONNS", 25),
		RedisAddr:        GetEnv("REDIS_ADDR", ""),
		LayerCacheTTL:    time.Duration(GetEnvInt("LAYER_CACHE_TTL", 600)) * time.Second,
		MediaRoot:        GetEnv("MEDIA_ROOT", filepath.Join(".", "media")),
		PublicBaseURL:    strings.TrimRight(GetEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		MapboxAPIKey:     GetEnv("MAPBOX_API_KEY", ""),
		JWTSecret:        GetEnv("JWT_SECRET", ""),
		INatBaseURL:      GetEnv("INAT_BASE_URL", "https://api.inaturalist.org/v1"),
		WikipediaURL:     GetEnv("WIKIPEDIA_BASE_URL", "https://en.wikipedia.org/api/rest_v1"),
		LayersConfigPath: GetEnv("LAYERS_CONFIG", "layers.json"),
		SMTP: SMTPConfig{
			Host:     GetEnv("SMTP_HOST", "localhost"),
			Port:     GetEnv("SMTP_PORT", "25"),
			User:     GetEnv("SMTP_USER", ""),
			Password: GetEnv("SMTP_PASSWORD", ""),
			From:     GetEnv("FROM_EMAIL", "noreply@localhost"),
			FromName: GetEnv("FROM_NAME", ""),
		},
	}

	users, err := ParseStaffUsers(GetEnv("STAFF_USERS", ""))
	if err != nil {
		return nil, err
	}
	cfg.StaffUsers = users

	layers, err := LoadLayers(cfg.LayersConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Layers = layers

	return cfg, nil
}

// LoadLayers returns the default layers overridden by the JSON file at path, if it exists
func LoadLayers(path string) (Layers, error) {
	layers := DefaultLayers()
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return layers, nil
		}
		return layers, fmt.Errorf("error opening layers config: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&layers); err != nil {
		return layers, fmt.Errorf("error decoding layers config: %w", err)
	}
	return layers, nil
}

// ParseStaffUsers parses "name:bcrypt-hash" pairs separated by commas
func ParseStaffUsers(raw string) (map[string]string, error) {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("invalid STAFF_USERS entry %q", entry)
		}
		users[name] = hash
	}
	return users, nil
}

// MediaPath returns the full path of a file below the media root
func (c *Config) MediaPath(parts ...string) string {
	return filepath.Join(append([]string{c.MediaRoot}, parts...)...)
}
