package structs

// TileType 描述一个格子的类别。
type TileType string

const (
	TileWall     TileType = "wall"
	TileFloor    TileType = "floor"
	TileDoor     TileType = "door"
	TileEntrance TileType = "entrance"
	TileExit     TileType = "exit"
)

// Point 描述地图上的一个坐标。
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Tile 描述地牢中的一个格子，生成后不可变。
type Tile struct {
	X    int      `json:"x"`
	Y    int      `json:"y"`
	Type TileType `json:"type"`
}

// Level 描述一层地牢。Tiles 按行优先排列，覆盖每个格子恰好一次。
type Level struct {
	LevelNumber int    `json:"levelNumber"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Tiles       []Tile `json:"tiles"`
	Start       Point  `json:"start"`
	Exit        Point  `json:"exit"`
}

// Monster is fully determined by the room seed and never mutated.
type Monster struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HP        int    `json:"hp"`
	Attack    int    `json:"attack"`
	Defense   int    `json:"defense"`
	SpriteKey string `json:"spriteKey"`
}

// RoomEvent 是生成的房间内容，下一次生成会整体覆盖。
type RoomEvent struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Monster     *Monster `json:"monster,omitempty"`
	Loot        []string `json:"loot,omitempty"`
}

// PlayerState 描述某个社区中一个玩家的状态。
type PlayerState struct {
	UserID       string `json:"userId"`       // 用户标识
	Username     string `json:"username"`     // 仅用于展示
	Position     Point  `json:"position"`     // 必须是当前层可行走的格子
	HP           int    `json:"hp"`           // 生命值
	Score        int64  `json:"score"`        // 累计得分
	LastActionAt int64  `json:"lastActionAt"` // 最后行动时间，毫秒时间戳
}

// GameState 是每个社区唯一的游戏实例。
type GameState struct {
	SubredditName    string                  `json:"subredditName"`
	CurrentLevel     Level                   `json:"currentLevel"`
	CurrentRoomEvent *RoomEvent              `json:"currentRoomEvent,omitempty"`
	Players          map[string]*PlayerState `json:"players"` // 以userId为key
	CurrentPostID    string                  `json:"currentPostId,omitempty"`
	WeekNumberUTC    int64                   `json:"weekNumberUtc"`
	UpdatedAt        int64                   `json:"updatedAt"` // 毫秒时间戳
}

// LeaderboardEntry 是排行榜中的一行。
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	Streak   int64  `json:"streak,omitempty"`
}

// Puzzle 是每日问答题目。
type Puzzle struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}
