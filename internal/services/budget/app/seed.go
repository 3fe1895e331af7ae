package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/global"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"gopkg.in/yaml.v3"
)

// Seed lists the users, groups and global grants a node starts with.
type Seed struct {
	Users             []SeedUser          `yaml:"users"`
	Groups            []SeedGroup         `yaml:"groups"`
	GlobalPermissions map[string][]string `yaml:"global_permissions"`
}

// SeedUser is one user entry of a seed file.
type SeedUser struct {
	ID           string `yaml:"id"`
	DisplayName  string `yaml:"display_name"`
	Organization string `yaml:"organization"`
	Address      string `yaml:"address"`
}

// SeedGroup is one group entry of a seed file.
type SeedGroup struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Members     []string `yaml:"members"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// ApplySeed creates the missing seed users and groups and grants the seed
// global permissions, acting as root. Entries that already exist are left
// untouched, so applying a seed twice changes nothing.
func (s *Service) ApplySeed(ctx context.Context, seed Seed) error {
	root := identity.ServiceUser{ID: identity.Root}
	for _, u := range seed.Users {
		organization := u.Organization
		if organization == "" {
			organization = s.organization
		}
		_, err := s.CreateUser(ctx, root, global.NewUser{
			ID:           u.ID,
			DisplayName:  u.DisplayName,
			Organization: organization,
			Address:      u.Address,
		})
		if err != nil && !apperrors.IsCode(err, apperrors.CodeAlreadyExists) {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, g := range seed.Groups {
		if _, err := s.CreateGroup(ctx, root, global.NewGroup{ID: g.ID, DisplayName: g.DisplayName, Members: g.Members}); err != nil {
			if !apperrors.IsCode(err, apperrors.CodeAlreadyExists) {
				return fmt.Errorf("seed group %s: %w", g.ID, err)
			}
			for _, member := range g.Members {
				if _, err := s.AddGroupMember(ctx, root, g.ID, member); err != nil {
					return fmt.Errorf("seed group %s member %s: %w", g.ID, member, err)
				}
			}
		}
	}
	intents := make([]string, 0, len(seed.GlobalPermissions))
	for intent := range seed.GlobalPermissions {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	for _, intent := range intents {
		for _, grantee := range seed.GlobalPermissions[intent] {
			if _, err := s.GrantGlobalPermission(ctx, root, permission.Intent(intent), grantee); err != nil {
				return fmt.Errorf("seed grant %s to %s: %w", intent, grantee, err)
			}
		}
	}
	log.Printf("seed applied: %d users, %d groups, %d global intents", len(seed.Users), len(seed.Groups), len(intents))
	return nil
}
