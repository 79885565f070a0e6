// Package puzzle serves the daily trivia question and scores answers on
// the trivia leaderboard.
package puzzle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/hoshinonyaruko/dungeon-in-im/leaderboard"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

// DefaultURL is the Open Trivia DB endpoint for one multiple choice question.
const DefaultURL = "https://opentdb.com/api.php?amount=1&type=multiple"

// Fallback is served whenever no live puzzle can be fetched.
func Fallback() structs.Puzzle {
	return structs.Puzzle{
		Question: "What is the mascot of Reddit?",
		Options:  []string{"Snoo", "Alien", "Bot", "Meme"},
		Answer:   "Snoo",
	}
}

// Fetcher produces a fresh puzzle.
type Fetcher interface {
	Fetch(ctx context.Context) (structs.Puzzle, error)
}

// OpenTDB fetches questions from an Open Trivia DB compatible endpoint.
type OpenTDB struct {
	URL    string
	Client *http.Client
}

type openTDBResponse struct {
	Results []struct {
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
	} `json:"results"`
}

// Fetch implements Fetcher.
func (o OpenTDB) Fetch(ctx context.Context) (structs.Puzzle, error) {
	url := o.URL
	if url == "" {
		url = DefaultURL
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return structs.Puzzle{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return structs.Puzzle{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return structs.Puzzle{}, fmt.Errorf("trivia source returned %s", resp.Status)
	}

	var data openTDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return structs.Puzzle{}, fmt.Errorf("decode trivia response: %w", err)
	}
	if len(data.Results) == 0 {
		return structs.Puzzle{}, errors.New("no puzzle returned from trivia source")
	}

	r := data.Results[0]
	options := make([]string, 0, len(r.IncorrectAnswers)+1)
	for _, o := range append(r.IncorrectAnswers, r.CorrectAnswer) {
		options = append(options, html.UnescapeString(o))
	}
	rand.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	return structs.Puzzle{
		Question: html.UnescapeString(r.Question),
		Options:  options,
		Answer:   html.UnescapeString(r.CorrectAnswer),
	}, nil
}

// CheckResult is the outcome of one guess.
type CheckResult struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
	Answer  string `json:"answer,omitempty"`
}

// Service caches one puzzle per UTC day and scores guesses.
type Service struct {
	store   kv.Store
	board   *leaderboard.Board
	fetcher Fetcher
	now     func() time.Time
}

// NewService returns a Service. A nil fetcher always serves the fallback.
func NewService(store kv.Store, board *leaderboard.Board, fetcher Fetcher) *Service {
	return &Service{store: store, board: board, fetcher: fetcher, now: time.Now}
}

func (s *Service) key() string {
	return "puzzle:" + s.now().UTC().Format("2006-01-02")
}

// Today 返回今天的题目；任何获取失败都会退回到固定题目，不会返回错误。
func (s *Service) Today(ctx context.Context) structs.Puzzle {
	if raw, err := s.store.Get(ctx, s.key()); err == nil {
		var p structs.Puzzle
		if err := json.Unmarshal(raw, &p); err == nil && p.Answer != "" {
			return p
		}
	}

	if s.fetcher == nil {
		return Fallback()
	}
	p, err := s.fetcher.Fetch(ctx)
	if err != nil || p.Answer == "" {
		log.Printf("trivia fetch failed, using fallback: %v", err)
		return Fallback()
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return p
	}
	created, err := s.store.SetNX(ctx, s.key(), payload)
	if err != nil {
		log.Printf("cache puzzle: %v", err)
		return p
	}
	if !created {
		// another request cached first; serve theirs so everyone sees one question
		if raw, err := s.store.Get(ctx, s.key()); err == nil {
			var cached structs.Puzzle
			if json.Unmarshal(raw, &cached) == nil && cached.Answer != "" {
				return cached
			}
		}
	}
	return p
}

// Check compares guess to today's answer ignoring case and surrounding
// space. Correct answers add a point and extend the streak; wrong answers
// reset the streak. Anonymous guesses are answered but not scored.
func (s *Service) Check(ctx context.Context, community, userID, username, guess string) (CheckResult, error) {
	guess = strings.TrimSpace(guess)
	if guess == "" {
		return CheckResult{Message: "No guess provided."}, nil
	}

	p := s.Today(ctx)
	correct := strings.EqualFold(guess, strings.TrimSpace(p.Answer))

	if userID != "" && community != "" {
		if correct {
			if _, err := s.board.Add(ctx, community, userID, username, 1); err != nil {
				return CheckResult{}, err
			}
			if _, err := s.board.IncrStreak(ctx, community, userID); err != nil {
				return CheckResult{}, err
			}
		} else if err := s.board.ResetStreak(ctx, community, userID); err != nil {
			return CheckResult{}, err
		}
	}

	if correct {
		return CheckResult{Correct: true, Message: "🎉 Correct! You're a trivia master!", Answer: p.Answer}, nil
	}
	return CheckResult{Message: "❌ Nope, try again!"}, nil
}
