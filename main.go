package main

import (
	"context"
	"log"
	"os"

	"github.com/hoshinonyaruko/dungeon-in-im/action"
	"github.com/hoshinonyaruko/dungeon-in-im/api"
	"github.com/hoshinonyaruko/dungeon-in-im/bolt"
	"github.com/hoshinonyaruko/dungeon-in-im/config"
	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/hoshinonyaruko/dungeon-in-im/leaderboard"
	"github.com/hoshinonyaruko/dungeon-in-im/memimg"
	"github.com/hoshinonyaruko/dungeon-in-im/postgres"
	"github.com/hoshinonyaruko/dungeon-in-im/puzzle"
	"github.com/hoshinonyaruko/dungeon-in-im/render"
	"github.com/hoshinonyaruko/dungeon-in-im/sqlite"
	"github.com/hoshinonyaruko/dungeon-in-im/state"
)

func main() {
	// Initialize the configuration
	cfg := config.LoadConfig("./config.json")
	EnsureFoldersExist(cfg.SpriteDir, cfg.AvatarDir, cfg.OutputDir)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store, err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 获取blockSize
	blockSize := config.GetConfigValue("blocksize").(int)
	// 载入怪物图标和头像到内存
	sprites := memimg.NewCache(blockSize)
	if err := sprites.LoadDir(cfg.SpriteDir); err != nil {
		log.Printf("load sprites: %v", err)
	}
	avatars := memimg.NewCache(blockSize)
	if err := avatars.LoadDir(cfg.AvatarDir); err != nil {
		log.Printf("load avatars: %v", err)
	}
	// 检测并热更新到内存 加速绘图
	go watch(ctx, sprites, cfg.SpriteDir)
	go watch(ctx, avatars, cfg.AvatarDir)

	games := state.New(store, leaderboard.NewDungeon(store))
	router := api.NewRouter(&api.Deps{
		Processor:       action.NewProcessor(games, action.WithDefaultPrompt(cfg.RoomPrompt)),
		Store:           games,
		Puzzles:         puzzle.NewService(store, leaderboard.NewTrivia(store), puzzle.OpenTDB{URL: cfg.TriviaURL}),
		Renderer:        &render.Renderer{BlockSize: blockSize, Dir: cfg.OutputDir, Sprites: sprites, Avatars: avatars},
		LeaderboardSize: cfg.LeaderboardSize,
		ModToken:        cfg.ModToken,
		SelfPath:        cfg.SelfPath,
	})
	// 从配置单例读取端口 监听
	if err := router.Run(":" + config.GetConfigValue("port").(string)); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func openStore(cfg *config.AppConfig) (kv.Store, error) {
	switch cfg.Store {
	case "postgres":
		return postgres.Open(cfg.PostgresDSN)
	case "bolt":
		return bolt.Open(cfg.BoltPath)
	case "memory":
		log.Println("using in-memory store, state is lost on restart")
		return kv.NewMemory(), nil
	default:
		return sqlite.Open(cfg.SQLitePath)
	}
}

func watch(ctx context.Context, c *memimg.Cache, dir string) {
	if err := c.Watch(ctx, dir, nil); err != nil {
		log.Printf("watch %s: %v", dir, err)
	}
}

// EnsureFoldersExist 检查并创建必需的文件夹
func EnsureFoldersExist(folders ...string) {
	for _, folder := range folders {
		if _, err := os.Stat(folder); os.IsNotExist(err) {
			// 文件夹不存在，尝试创建它
			err := os.MkdirAll(folder, 0755)
			if err != nil {
				log.Fatalf("Failed to create %s directory: %s", folder, err)
			}
			log.Printf("Created %s directory", folder)
		}
	}
}
