// Package grid builds dungeon levels and resolves movement on them.
package grid

import "github.com/hoshinonyaruko/dungeon-in-im/structs"

const (
	// LevelWidth and LevelHeight are the fixed dimensions of every level.
	LevelWidth  = 9
	LevelHeight = 9
)

// BuildLevel 生成一层地牢：外圈为墙，(1,1) 为入口，(w-2,h-2) 为出口，其余为地板。
func BuildLevel(levelNumber int) structs.Level {
	start := structs.Point{X: 1, Y: 1}
	exit := structs.Point{X: LevelWidth - 2, Y: LevelHeight - 2}

	tiles := make([]structs.Tile, 0, LevelWidth*LevelHeight)
	for y := 0; y < LevelHeight; y++ {
		for x := 0; x < LevelWidth; x++ {
			t := structs.TileFloor
			switch {
			case x == 0 || y == 0 || x == LevelWidth-1 || y == LevelHeight-1:
				t = structs.TileWall
			case x == start.X && y == start.Y:
				t = structs.TileEntrance
			case x == exit.X && y == exit.Y:
				t = structs.TileExit
			}
			tiles = append(tiles, structs.Tile{X: x, Y: y, Type: t})
		}
	}

	return structs.Level{
		LevelNumber: levelNumber,
		Width:       LevelWidth,
		Height:      LevelHeight,
		Tiles:       tiles,
		Start:       start,
		Exit:        exit,
	}
}

// InBounds reports whether (x, y) lies inside the level.
func InBounds(level structs.Level, x, y int) bool {
	return x >= 0 && y >= 0 && x < level.Width && y < level.Height
}

// TileAt returns the tile at (x, y). Out of bounds coordinates read as wall.
func TileAt(level structs.Level, x, y int) structs.TileType {
	if !InBounds(level, x, y) {
		return structs.TileWall
	}
	i := y*level.Width + x
	if i < len(level.Tiles) && level.Tiles[i].X == x && level.Tiles[i].Y == y {
		return level.Tiles[i].Type
	}
	// tiles not in row-major order
	for _, t := range level.Tiles {
		if t.X == x && t.Y == y {
			return t.Type
		}
	}
	return structs.TileWall
}

// Walkable reports whether a player may stand on a tile of type t.
func Walkable(t structs.TileType) bool {
	return t != structs.TileWall
}

// ResolveMove 计算移动后的位置。先把目标坐标限制在地图范围内；
// 如果目标是墙，则退到上一行。移动永远不会被拒绝。
//
// When the fallback row is still not walkable (moving into a corner, or
// north from row 1) the move bounces back to the origin.
func ResolveMove(level structs.Level, fromX, fromY, dx, dy int) (int, int) {
	x := clamp(fromX+dx, 0, level.Width-1)
	y := clamp(fromY+dy, 0, level.Height-1)

	if TileAt(level, x, y) != structs.TileWall {
		return x, y
	}

	if y > 0 {
		y--
	}
	if Walkable(TileAt(level, x, y)) {
		return x, y
	}

	if InBounds(level, fromX, fromY) && Walkable(TileAt(level, fromX, fromY)) {
		return fromX, fromY
	}
	return level.Start.X, level.Start.Y
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
