// Package persist stores finished and in-flight games as JSON files, one
// per session code, so a server restart does not lose running sessions.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Big-debs/jigsawverse-sub000/internal/replicate"
)

// SavedGame is the on-disk form of a session: the board geometry and image
// reference needed to rebuild the catalog, plus the latest snapshot.
type SavedGame struct {
	Code     string             `json:"code"`
	Rows     int                `json:"rows"`
	Cols     int                `json:"cols"`
	ImageRef string             `json:"imageRef"`
	Snapshot replicate.Snapshot `json:"snapshot"`
	SavedAt  string             `json:"savedAt"`
}

// Meta is the listing view of a saved game, without the snapshot payload.
type Meta struct {
	Code     string `json:"code"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
	ImageRef string `json:"imageRef"`
	Mode     string `json:"mode"`
	Status   string `json:"status"`
	SavedAt  string `json:"savedAt"`
}

// Store persists games by session code.
type Store interface {
	Save(ctx context.Context, game SavedGame) error
	Load(ctx context.Context, code string) (SavedGame, error)
	List(ctx context.Context) ([]Meta, error)
	Delete(ctx context.Context, code string) error
}

// Session codes double as file names, so only the code alphabet is allowed
// anywhere near a path.
var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// ValidCode reports whether code fits the session code alphabet.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// FS is a flat directory of <code>.json files.
type FS struct {
	dir string
}

// NewFS creates the directory if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FS{dir: dir}, nil
}

func (s *FS) pathFor(code string) string {
	return filepath.Join(s.dir, code+".json")
}

func (s *FS) Save(ctx context.Context, game SavedGame) error {
	if !codePattern.MatchString(game.Code) {
		return fmt.Errorf("invalid game code %q", game.Code)
	}
	f, err := os.Create(s.pathFor(game.Code))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(game)
}

func (s *FS) Load(ctx context.Context, code string) (SavedGame, error) {
	if !codePattern.MatchString(code) {
		return SavedGame{}, os.ErrNotExist
	}
	data, err := os.ReadFile(s.pathFor(code))
	if err != nil {
		return SavedGame{}, err
	}
	var game SavedGame
	if err := json.Unmarshal(data, &game); err != nil {
		return SavedGame{}, fmt.Errorf("corrupt saved game %s: %w", code, err)
	}
	return game, nil
}

// List returns metadata for every readable saved game, newest first.
// Unreadable or corrupt files are skipped rather than failing the listing.
func (s *FS) List(ctx context.Context) ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var game SavedGame
		if err := json.Unmarshal(data, &game); err != nil || game.Code == "" {
			continue
		}
		out = append(out, Meta{
			Code:     game.Code,
			Rows:     game.Rows,
			Cols:     game.Cols,
			ImageRef: game.ImageRef,
			Mode:     game.Snapshot.Mode,
			Status:   game.Snapshot.Status,
			SavedAt:  game.SavedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt > out[j].SavedAt })
	return out, nil
}

func (s *FS) Delete(ctx context.Context, code string) error {
	if !codePattern.MatchString(code) {
		return os.ErrNotExist
	}
	return os.Remove(s.pathFor(code))
}
