package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"riddle-league/internal/domain"
)

// Catalog is an authored set of users, competitions and riddles.
type Catalog struct {
	Users        []domain.User        `yaml:"users"`
	Competitions []domain.Competition `yaml:"competitions"`
	Riddles      []domain.Riddle      `yaml:"riddles"`
	// Participants maps competition id to the user ids to enroll.
	Participants map[string][]string `yaml:"participants"`
}

// DecodeCatalog parses a YAML catalog and checks riddle windows.
func DecodeCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	for _, riddle := range c.Riddles {
		if riddle.ID == "" {
			return Catalog{}, fmt.Errorf("riddle %q: missing id", riddle.Title)
		}
		if !riddle.EndsAt.After(riddle.StartsAt) {
			return Catalog{}, fmt.Errorf("riddle %s: endsAt must be after startsAt", riddle.ID)
		}
	}
	return c, nil
}

// Seed writes the catalog in dependency order. Re-seeding the same catalog is
// safe on stores whose creates are upserts.
func Seed(ctx context.Context, store interface {
	CatalogStore
	CompetitionStore
}, c Catalog) error {
	for _, u := range c.Users {
		if err := store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.ID, err)
		}
	}
	for _, comp := range c.Competitions {
		if err := store.CreateCompetition(ctx, comp); err != nil {
			return fmt.Errorf("create competition %s: %w", comp.ID, err)
		}
	}
	for _, r := range c.Riddles {
		if err := store.CreateRiddle(ctx, r); err != nil {
			return fmt.Errorf("create riddle %s: %w", r.ID, err)
		}
	}
	for competitionID, users := range c.Participants {
		for _, userID := range users {
			err := store.JoinCompetition(ctx, competitionID, userID)
			if err != nil && !errors.Is(err, domain.ErrAlreadyJoined) {
				return fmt.Errorf("join %s to %s: %w", userID, competitionID, err)
			}
		}
	}
	return nil
}
