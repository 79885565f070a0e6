// Package render draws a community's current level to a PNG snapshot
// that the hosting post shows as its preview image.
package render

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/hoshinonyaruko/dungeon-in-im/memimg"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

// Paths are the files written by Render.
type Paths struct {
	Map     string
	Preview string
}

// Renderer draws levels. Sprites are keyed by monster sprite key and
// avatars by user id; either cache may be nil.
type Renderer struct {
	BlockSize int
	Dir       string
	Sprites   *memimg.Cache
	Avatars   *memimg.Cache
}

var tileColors = map[structs.TileType][3]float64{
	structs.TileWall:     {0.18, 0.17, 0.2},
	structs.TileFloor:    {0.62, 0.58, 0.5},
	structs.TileDoor:     {0.45, 0.3, 0.15},
	structs.TileEntrance: {0.3, 0.6, 0.35},
	structs.TileExit:     {0.85, 0.7, 0.2},
}

// Render 渲染地图并保存为图片，同时生成一张缩小模糊的预览图。
func (r *Renderer) Render(st *structs.GameState) (Paths, error) {
	img := r.Draw(st)

	if err := os.MkdirAll(r.Dir, os.ModePerm); err != nil {
		return Paths{}, err
	}
	name := safeName(st.SubredditName)
	paths := Paths{
		Map:     filepath.Join(r.Dir, name+".png"),
		Preview: filepath.Join(r.Dir, name+"_preview.png"),
	}

	if err := imaging.Save(img, paths.Map); err != nil {
		return Paths{}, fmt.Errorf("save map: %w", err)
	}
	preview := imaging.Blur(imaging.Resize(img, img.Bounds().Dx()/2, 0, imaging.Lanczos), 1.5)
	if err := imaging.Save(preview, paths.Preview); err != nil {
		return Paths{}, fmt.Errorf("save preview: %w", err)
	}
	return paths, nil
}

// Draw renders st to an image without touching the disk.
func (r *Renderer) Draw(st *structs.GameState) image.Image {
	block := r.BlockSize
	if block <= 0 {
		block = 20
	}
	level := st.CurrentLevel
	dc := gg.NewContext(level.Width*block, level.Height*block)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	for _, t := range level.Tiles {
		c, ok := tileColors[t.Type]
		if !ok {
			c = tileColors[structs.TileFloor]
		}
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawRectangle(float64(t.X*block), float64(t.Y*block), float64(block), float64(block))
		dc.Fill()
	}
	renderGrid(dc, level.Width*block, level.Height*block, block)

	if ev := st.CurrentRoomEvent; ev != nil && ev.Monster != nil {
		// the monster has no position of its own; it waits in the middle of the room
		r.drawMonster(dc, ev.Monster, level.Width/2, level.Height/2, block)
	}

	// stable draw order so overlapping players render the same every time
	ids := make([]string, 0, len(st.Players))
	for id := range st.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.drawPlayer(dc, st.Players[id], block)
	}

	return dc.Image()
}

func (r *Renderer) drawMonster(dc *gg.Context, m *structs.Monster, x, y, block int) {
	if r.Sprites != nil {
		if img, ok := r.Sprites.Get(m.SpriteKey); ok {
			dc.DrawImage(fit(img, block), x*block, y*block)
			return
		}
	}
	dc.SetRGB(0.75, 0.1, 0.1)
	dc.DrawCircle(center(x, block), center(y, block), float64(block)/2.5)
	dc.Fill()
}

func (r *Renderer) drawPlayer(dc *gg.Context, p *structs.PlayerState, block int) {
	if r.Avatars != nil {
		if img, ok := r.Avatars.Get(p.UserID); ok {
			dc.DrawImage(fit(img, block), p.Position.X*block, p.Position.Y*block)
			return
		}
	}
	cx, cy := center(p.Position.X, block), center(p.Position.Y, block)
	dc.SetRGB(0.2, 0.45, 0.85)
	dc.DrawCircle(cx, cy, float64(block)/2.5)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(initial(p), cx, cy, 0.5, 0.35)
}

func renderGrid(dc *gg.Context, width, height, blockSize int) {
	dc.SetRGBA(0, 0, 0, 0.2)
	dc.SetLineWidth(1)
	for x := 0; x <= width; x += blockSize {
		dc.DrawLine(float64(x), 0, float64(x), float64(height))
		dc.Stroke()
	}
	for y := 0; y <= height; y += blockSize {
		dc.DrawLine(0, float64(y), float64(width), float64(y))
		dc.Stroke()
	}
}

func fit(img image.Image, block int) image.Image {
	b := img.Bounds()
	if b.Dx() == block && b.Dy() == block {
		return img
	}
	return imaging.Resize(img, block, block, imaging.Lanczos)
}

func center(v, block int) float64 {
	return float64(v*block) + float64(block)/2
}

func initial(p *structs.PlayerState) string {
	name := p.Username
	if name == "" {
		name = p.UserID
	}
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "?"
}

func safeName(community string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, community)
	if out == "" {
		return "_"
	}
	return out
}
