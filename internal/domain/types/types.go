// Package types holds the read shapes shared between the service layer and
// the HTTP API.
package types

import (
	"github.com/etudekit/etude/internal/domain/model"
)

// ScoreInfo is the API view of a loaded score.
type ScoreInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Source   string `json:"source"`
	Measures int    `json:"measures"`
	Beats    int    `json:"beats"`
}

// SessionSnapshot is the poll view of a live session.
type SessionSnapshot struct {
	ID         string            `json:"id"`
	ScoreID    string            `json:"score_id"`
	State      string            `json:"state"`
	BeatIndex  int               `json:"beat_index"`
	TotalBeats int               `json:"total_beats"`
	Attempts   int               `json:"attempts"`
	Score      model.ScoreState  `json:"score"`
	Percent    int               `json:"percent"`
	Aborted    bool              `json:"aborted"`
	Styles     map[string]string `json:"styles"`
}
