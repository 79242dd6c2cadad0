package storage

import (
	"context"
	"encoding/json"
)

// PutSkillRisk upserts one skill risk keyed by (session_id, skill_name).
func (s *Store) PutSkillRisk(ctx context.Context, r SkillRisk) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_risks (session_id, skill_name, category, probability, time_horizon, justification)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, skill_name) DO UPDATE SET
			category = excluded.category,
			probability = excluded.probability,
			time_horizon = excluded.time_horizon,
			justification = excluded.justification`,
		r.SessionID, r.SkillName, r.Category, r.Probability, r.TimeHorizon, r.Justification,
	)
	if err != nil {
		return storeErr("writing skill risk", err)
	}
	return nil
}

// PutCareerCard upserts one career card keyed by (session_id, card_index).
func (s *Store) PutCareerCard(ctx context.Context, c CareerCard) error {
	roadmap := c.Roadmap
	if roadmap == nil {
		roadmap = []RoadmapStep{}
	}
	roadmapJSON, err := json.Marshal(roadmap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO career_cards (session_id, card_index, combo_formula, rationale, roadmap_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, card_index) DO UPDATE SET
			combo_formula = excluded.combo_formula,
			rationale = excluded.rationale,
			roadmap_json = excluded.roadmap_json`,
		c.SessionID, c.CardIndex, c.ComboFormula, c.Rationale, string(roadmapJSON),
	)
	if err != nil {
		return storeErr("writing career card", err)
	}
	return nil
}

// ListSkillRisks returns a session's skill risks ordered by skill name.
func (s *Store) ListSkillRisks(ctx context.Context, sessionID string) ([]SkillRisk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, skill_name, category, probability, time_horizon, justification
		FROM skill_risks WHERE session_id = ? ORDER BY skill_name ASC`, sessionID,
	)
	if err != nil {
		return nil, storeErr("querying skill risks", err)
	}
	defer rows.Close()

	var results []SkillRisk
	for rows.Next() {
		var r SkillRisk
		if err := rows.Scan(&r.SessionID, &r.SkillName, &r.Category, &r.Probability, &r.TimeHorizon, &r.Justification); err != nil {
			return nil, storeErr("scanning skill risk", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListCareerCards returns a session's career cards ordered by card index.
func (s *Store) ListCareerCards(ctx context.Context, sessionID string) ([]CareerCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, card_index, combo_formula, rationale, roadmap_json
		FROM career_cards WHERE session_id = ? ORDER BY card_index ASC`, sessionID,
	)
	if err != nil {
		return nil, storeErr("querying career cards", err)
	}
	defer rows.Close()

	var results []CareerCard
	for rows.Next() {
		var c CareerCard
		var roadmapJSON string
		if err := rows.Scan(&c.SessionID, &c.CardIndex, &c.ComboFormula, &c.Rationale, &roadmapJSON); err != nil {
			return nil, storeErr("scanning career card", err)
		}
		if err := json.Unmarshal([]byte(roadmapJSON), &c.Roadmap); err != nil {
			return nil, storeErr("decoding roadmap", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
