// Package memimg keeps sprite and avatar images in memory, scaled to one
// map block, and reloads them when files in the watched folder change.
package memimg

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
)

// Cache maps a file's base name without extension ("troll", "t2_abc") to
// its decoded image.
type Cache struct {
	size int

	mu     sync.RWMutex
	images map[string]image.Image
}

// NewCache returns an empty cache whose images are scaled to size×size.
// A size of 0 keeps images at their original size.
func NewCache(size int) *Cache {
	return &Cache{size: size, images: make(map[string]image.Image)}
}

// Name is the cache key for a file path.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadDir loads every decodable image in directory. Files that are not
// images are skipped.
func (c *Cache) LoadDir(directory string) error {
	return filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if err := c.LoadFile(path); err != nil {
			log.Printf("skip %s: %v", path, err)
		}
		return nil
	})
}

// LoadFile decodes one image into the cache.
func (c *Cache) LoadFile(path string) error {
	img, err := loadImage(path)
	if err != nil {
		return err
	}
	if c.size > 0 {
		img = imaging.Resize(img, c.size, c.size, imaging.Lanczos)
	}
	c.Put(Name(path), img)
	return nil
}

// Put stores img under name.
func (c *Cache) Put(name string, img image.Image) {
	c.mu.Lock()
	c.images[name] = img
	c.mu.Unlock()
}

// Get returns the image stored under name.
func (c *Cache) Get(name string) (image.Image, bool) {
	c.mu.RLock()
	img, exists := c.images[name]
	c.mu.RUnlock()
	return img, exists
}

// Len reports how many images are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

func (c *Cache) remove(name string) {
	c.mu.Lock()
	delete(c.images, name)
	c.mu.Unlock()
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Watch 监听文件夹并热更新到内存，直到 ctx 结束。ready 在开始监听后关闭，可以为 nil。
func (c *Cache) Watch(ctx context.Context, directory string, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(directory); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				if err := c.LoadFile(event.Name); err != nil {
					// partially written files fail to decode; the next Write retries
					log.Printf("reload %s: %v", event.Name, err)
				}
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				c.remove(Name(event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Println("watch error:", err)
		}
	}
}
