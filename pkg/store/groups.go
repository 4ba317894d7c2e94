package store

import (
	"encoding/json"
	"fmt"

	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"
)

// GetGroup loads a group by id, tombstoned or not.
func (s *Store) GetGroup(id string) (*models.Group, error) {
	tr := metrics.Track("store.get_group")
	defer tr.Finish()

	b, err := s.get(GenGroupKey(id))
	if err != nil {
		return nil, err
	}
	var g models.Group
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", id, err)
	}
	return &g, nil
}

// CreateGroup stores a new group at revision 1.
func (s *Store) CreateGroup(g *models.Group) error {
	tr := metrics.Track("store.create_group")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.has(GenGroupKey(g.ID))
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	now := s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	g.Rev = 1
	return s.putGroup(g)
}

// UpdateGroup writes g when the stored revision still equals g.Rev, then
// advances g.Rev. The message list is replaced along with the metadata.
func (s *Store) UpdateGroup(g *models.Group) error {
	tr := metrics.Track("store.update_group")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.GetGroup(g.ID)
	if err != nil {
		return err
	}
	if cur.Rev != g.Rev {
		return fmt.Errorf("group %s at rev %d, expected %d: %w", g.ID, cur.Rev, g.Rev, ErrConflict)
	}
	g.Rev++
	g.UpdatedAt = s.now()
	if err := s.putGroup(g); err != nil {
		g.Rev--
		return err
	}
	return nil
}

func (s *Store) putGroup(g *models.Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode group %s: %w", g.ID, err)
	}
	return s.db.Set([]byte(GenGroupKey(g.ID)), data, s.writeOpt(true))
}

// ScanGroups returns groups matching pred with their message lists dropped.
func (s *Store) ScanGroups(pred func(*models.Group) bool) ([]*models.Group, error) {
	tr := metrics.Track("store.scan_groups")
	defer tr.Finish()

	var out []*models.Group
	err := s.iterPrefix(GroupPrefix, func(k, v []byte) (bool, error) {
		var g models.Group
		if err := json.Unmarshal(v, &g); err != nil {
			return false, fmt.Errorf("decode %s: %w", k, err)
		}
		if pred == nil || pred(&g) {
			sum := g.Summary()
			out = append(out, &sum)
		}
		return true, nil
	})
	return out, err
}

// ListGroupsForMember returns the live groups email belongs to.
func (s *Store) ListGroupsForMember(email string) ([]*models.Group, error) {
	return s.ScanGroups(func(g *models.Group) bool {
		return !g.Deleted() && g.IsMember(email)
	})
}

// PurgeGroup hard-deletes a group and its message index entries.
func (s *Store) PurgeGroup(id string) (int, error) {
	tr := metrics.Track("store.purge_group")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.GetGroup(id)
	if err != nil {
		return 0, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := stageDelete(b, GenGroupKey(id), g.Messages); err != nil {
		return 0, err
	}
	if err := s.apply(b); err != nil {
		return 0, err
	}
	return len(g.Messages), nil
}
