// Package content deterministically derives room events from a text seed.
// The same prompt and image reference always produce the same room.
package content

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

var monsterNames = []string{"Cinder Drake", "Gloom Troll", "Frost Wraith", "Mire Slime", "Arcane Sentinel"}

var spriteKeys = []string{"dragon", "troll", "wraith", "slime", "sentinel"}

var fillers = []string{
	"A glowing orb hums with latent power.",
	"Ancient runes shimmer along the walls.",
	"A cold breeze hints at hidden passages.",
	"Footprints crisscross the dust.",
}

const emptyPrompt = "Dust dances in the torchlight."

const offsetBasis uint32 = 2166136261

// Seed 对 prompt|imageRef 的 UTF-16 编码做 FNV-1a 32位折叠。
//
// Every step but the last wraps to 32 bits. The last multiply is summed
// from its shifted terms without wrapping and the seed is the absolute
// value of that sum truncated to 32 bits, so roughly half of all inputs
// differ from canonical FNV-1a. Room ids depend on this exact value.
func Seed(prompt, imageRef string) uint32 {
	units := utf16.Encode([]rune(prompt + "|" + imageRef))
	if len(units) == 0 {
		return offsetBasis
	}
	basis := offsetBasis
	h := int32(basis)
	var sum int64
	for _, u := range units {
		h ^= int32(u)
		// h*16777619 spelled out as the shifts it is made of, each wrapped to int32
		sum = int64(h) + int64(h<<1) + int64(h<<4) + int64(h<<7) + int64(h<<8) + int64(h<<24)
		h = int32(uint32(sum))
	}
	if sum < 0 {
		sum = -sum
	}
	return uint32(sum)
}

// Generate 根据输入生成房间事件，是纯函数。
func Generate(prompt, imageRef string) structs.RoomEvent {
	seed := Seed(prompt, imageRef)

	var monster *structs.Monster
	if seed%2 == 0 {
		monster = newMonster(seed)
	}

	return structs.RoomEvent{
		ID:          "evt_" + strconv.FormatUint(uint64(seed), 36),
		Description: describe(prompt, monster, seed),
		Monster:     monster,
		Loot:        loot(seed),
	}
}

// Fallback is the canned room served when there is nothing to generate from.
func Fallback() structs.RoomEvent {
	return structs.RoomEvent{
		ID:          "evt_fallback",
		Description: "You enter a chamber. " + emptyPrompt + " " + fillers[1],
	}
}

func newMonster(seed uint32) *structs.Monster {
	s := uint64(seed)
	return &structs.Monster{
		ID:        "mon_" + strconv.FormatUint(s*7919, 36),
		Name:      monsterNames[s%uint64(len(monsterNames))],
		HP:        30 + int(s%40),
		Attack:    5 + int(s%10),
		Defense:   2 + int(s%6),
		SpriteKey: spriteKeys[s%uint64(len(spriteKeys))],
	}
}

func loot(seed uint32) []string {
	switch {
	case seed%3 == 0:
		return []string{"Ancient Coin", "Healing Herb"}
	case seed%5 == 0:
		return []string{"Sapphire Shard"}
	}
	return nil
}

func describe(prompt string, monster *structs.Monster, seed uint32) string {
	p := strings.TrimSpace(prompt)
	if p == "" {
		p = emptyPrompt
	}
	base := "You enter a chamber. " + p
	if monster != nil {
		return fmt.Sprintf("%s A %s watches quietly. HP %d.", base, monster.Name, monster.HP)
	}
	return base + " " + fillers[seed%uint32(len(fillers))]
}
