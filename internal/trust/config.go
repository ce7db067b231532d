package trust

import (
	"fmt"
	"sort"

	"github.com/PolarWolf314/enseal/internal/configs"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/utils"
)

// Save writes aliases and groups back to config.toml.
func (s *Store) Save() error {
	if err := configs.SaveTOML(s.settings.ConfigFile(), s.config); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

// SetAlias points alias at an imported identity.
func (s *Store) SetAlias(alias, name string) error {
	if !utils.IsValidName(alias) {
		return fmt.Errorf("invalid alias '%s'", alias)
	}
	if _, err := s.load(name); err != nil {
		return err
	}
	s.config.Aliases[alias] = name
	return nil
}

// RemoveAlias deletes alias.
func (s *Store) RemoveAlias(alias string) error {
	if _, ok := s.config.Aliases[alias]; !ok {
		return fmt.Errorf("%w: alias %s", kerrors.ErrIdentityNotFound, alias)
	}
	delete(s.config.Aliases, alias)
	return nil
}

// Aliases returns alias -> identity pairs sorted by alias.
func (s *Store) Aliases() [][2]string {
	out := make([][2]string, 0, len(s.config.Aliases))
	for a, n := range s.config.Aliases {
		out = append(out, [2]string{a, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// AddToGroup adds members to group, creating it if needed. Members must
// resolve to imported identities; existing members are skipped.
func (s *Store) AddToGroup(group string, members ...string) error {
	if !utils.IsValidName(group) {
		return fmt.Errorf("invalid group name '%s'", group)
	}
	current := s.config.Groups[group]
	for _, m := range members {
		if _, err := s.LookupPublicKey(m); err != nil {
			return err
		}
		if !contains(current, m) {
			current = append(current, m)
		}
	}
	if len(current) > 0 {
		s.config.Groups[group] = current
	}
	return nil
}

// RemoveFromGroup removes member. A group left empty is deleted.
func (s *Store) RemoveFromGroup(group, member string) error {
	current, ok := s.config.Groups[group]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, group)
	}
	kept := current[:0]
	for _, m := range current {
		if m != member {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(current) {
		return fmt.Errorf("%w: %s is not in %s", kerrors.ErrIdentityNotFound, member, group)
	}
	if len(kept) == 0 {
		delete(s.config.Groups, group)
		return nil
	}
	s.config.Groups[group] = kept
	return nil
}

// DeleteGroup removes group entirely.
func (s *Store) DeleteGroup(group string) error {
	if _, ok := s.config.Groups[group]; !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, group)
	}
	delete(s.config.Groups, group)
	return nil
}

// Groups returns every group with its members.
func (s *Store) Groups() map[string][]string {
	return s.config.Groups
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
