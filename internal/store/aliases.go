package store

import "context"

// SetProjectAlias upserts a project's display name for the UI.
func (s *Store) SetProjectAlias(ctx context.Context, project, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_aliases (project_name, display_name) VALUES (?, ?)
		ON CONFLICT(project_name) DO UPDATE SET display_name = excluded.display_name`,
		project, displayName)
	return err
}

// ProjectAliases returns all known project→display-name mappings.
func (s *Store) ProjectAliases(ctx context.Context) ([]ProjectAlias, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT project_name, display_name FROM project_aliases")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectAlias
	for rows.Next() {
		var a ProjectAlias
		if err := rows.Scan(&a.ProjectName, &a.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertObservationLink records a plugin-produced external link.
func (s *Store) InsertObservationLink(ctx context.Context, l *ObservationLink) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO observation_links (observation_id, link_type, repo, number, action, url, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ObservationID, l.LinkType, l.Repo, l.Number, l.Action, l.URL, l.CreatedAtEpoch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LinksForObservation fetches all external links attached to an observation.
func (s *Store) LinksForObservation(ctx context.Context, observationID int64) ([]*ObservationLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, observation_id, link_type, repo, number, action, url, created_at_epoch
		FROM observation_links WHERE observation_id = ?`, observationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ObservationLink
	for rows.Next() {
		var l ObservationLink
		if err := rows.Scan(&l.ID, &l.ObservationID, &l.LinkType, &l.Repo, &l.Number, &l.Action, &l.URL, &l.CreatedAtEpoch); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
