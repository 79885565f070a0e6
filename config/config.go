package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
)

// AppConfig holds the structure of the configuration. Every field can be
// overridden by its DUNGEON_* environment variable.
type AppConfig struct {
	SelfPath        string `json:"selfpath" env:"DUNGEON_SELFPATH"`
	Port            string `json:"port" env:"DUNGEON_PORT"`
	Blocksize       int    `json:"blocksize" env:"DUNGEON_BLOCKSIZE"`
	Store           string `json:"store" env:"DUNGEON_STORE"` // sqlite, postgres, bolt or memory
	SQLitePath      string `json:"sqlitepath" env:"DUNGEON_SQLITE_PATH"`
	BoltPath        string `json:"boltpath" env:"DUNGEON_BOLT_PATH"`
	PostgresDSN     string `json:"postgresdsn" env:"DUNGEON_POSTGRES_DSN"`
	RoomPrompt      string `json:"roomprompt" env:"DUNGEON_ROOM_PROMPT"`
	LeaderboardSize int    `json:"leaderboardsize" env:"DUNGEON_LEADERBOARD_SIZE"`
	TriviaURL       string `json:"triviaurl" env:"DUNGEON_TRIVIA_URL"`
	ModToken        string `json:"modtoken" env:"DUNGEON_MOD_TOKEN"`
	OutputDir       string `json:"outputdir" env:"DUNGEON_OUTPUT_DIR"`
	SpriteDir       string `json:"spritedir" env:"DUNGEON_SPRITE_DIR"`
	AvatarDir       string `json:"avatardir" env:"DUNGEON_AVATAR_DIR"`
}

var (
	instance *AppConfig
	once     sync.Once
)

// Defaults returns the configuration written to a fresh config file.
func Defaults() *AppConfig {
	return &AppConfig{
		SelfPath:        "http://www.example.com",
		Port:            "38870",
		Blocksize:       20,
		Store:           "sqlite",
		SQLitePath:      "game.db",
		BoltPath:        "game.bolt",
		PostgresDSN:     "host=localhost user=dungeon password=dungeon dbname=dungeon sslmode=disable",
		RoomPrompt:      "A mysterious chamber",
		LeaderboardSize: 5,
		TriviaURL:       "https://opentdb.com/api.php?amount=1&type=multiple",
		OutputDir:       "output",
		SpriteDir:       "sprites",
		AvatarDir:       "avatar",
	}
}

// LoadConfig initializes and returns the singleton AppConfig. It panics
// if the file or the environment cannot be parsed.
func LoadConfig(filePath string) *AppConfig {
	once.Do(func() {
		cfg, err := Load(filePath)
		if err != nil {
			panic(err)
		}
		instance = cfg
	})
	return instance
}

// Load reads filePath, creating it with defaults if it does not exist,
// then applies environment overrides.
func Load(filePath string) (*AppConfig, error) {
	cfg := Defaults()
	// Load the config file if it exists, otherwise create one
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := saveConfig(filePath, cfg); err != nil {
			return nil, err
		}
	} else if err := loadConfig(filePath, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// loadConfig loads the settings from the file on top of cfg
func loadConfig(filePath string, cfg *AppConfig) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}
	return nil
}

// saveConfig saves the current settings to the file
func saveConfig(filePath string, cfg *AppConfig) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

// GetConfigValue returns the value of the configuration by key
func GetConfigValue(key string) interface{} {
	if instance == nil {
		return ""
	}
	switch key {
	case "selfpath":
		return instance.SelfPath
	case "port":
		return instance.Port
	case "blocksize":
		return instance.Blocksize
	case "store":
		return instance.Store
	case "roomprompt":
		return instance.RoomPrompt
	case "leaderboardsize":
		return instance.LeaderboardSize
	case "modtoken":
		return instance.ModToken
	case "outputdir":
		return instance.OutputDir
	default:
		return ""
	}
}
