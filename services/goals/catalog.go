package goals

import (
	"fmt"

	"github.com/mynews-app/service_layer/internal/app/domain/goals"
	"github.com/mynews-app/service_layer/internal/config"
)

// DefaultCatalog returns the built-in missions every user is seeded with.
func DefaultCatalog() []goals.Mission {
	return []goals.Mission{
		{
			ID:          "read_article_1",
			Name:        "First Read",
			Description: "Read your first article",
			TargetCount: 1,
			Type:        goals.MissionReadArticle,
		},
		{
			ID:          "read_article_10",
			Name:        "Bookworm",
			Description: "Read 10 different articles",
			TargetCount: 10,
			Type:        goals.MissionReadArticle,
		},
		{
			ID:          "react_to_article_5",
			Name:        "Opinionated",
			Description: "React to 5 articles",
			TargetCount: 5,
			Type:        goals.MissionReactToArticle,
		},
		{
			ID:          "add_friend_1",
			Name:        "Social Butterfly",
			Description: "Add a friend",
			TargetCount: 1,
			Type:        goals.MissionAddFriend,
		},
		{
			ID:          "add_friend_5",
			Name:        "Circle of Friends",
			Description: "Add 5 friends",
			TargetCount: 5,
			Type:        goals.MissionAddFriend,
		},
	}
}

// CatalogFromConfig converts a loaded mission catalog file.
func CatalogFromConfig(c *config.MissionCatalog) ([]goals.Mission, error) {
	if c == nil {
		return DefaultCatalog(), nil
	}
	out := make([]goals.Mission, 0, len(c.Missions))
	for _, def := range c.Missions {
		t, err := goals.ParseMissionType(def.Type)
		if err != nil {
			return nil, fmt.Errorf("mission %s: %w", def.ID, err)
		}
		out = append(out, goals.Mission{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			TargetCount: def.TargetCount,
			Type:        t,
		})
	}
	return out, nil
}

// LoadCatalog returns the catalog from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) ([]goals.Mission, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	c, err := config.LoadMissionCatalogFromPath(path)
	if err != nil {
		return nil, err
	}
	return CatalogFromConfig(c)
}
