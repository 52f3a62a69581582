// internal/models/job.go
package models

// GenerationJob is the queue payload asking a worker to generate questions for one game.
type GenerationJob struct {
	PlayerID       string   `json:"player_id"`
	GameID         string   `json:"game_id"`
	Keywords       []string `json:"keywords"`
	QuestionsLimit int      `json:"questions_limit"`
}

// JobFor builds the generation job for g.
func JobFor(g Game) GenerationJob {
	keywords := make([]string, len(g.Keywords))
	copy(keywords, g.Keywords)
	return GenerationJob{
		PlayerID:       g.PlayerID,
		GameID:         g.GameID,
		Keywords:       keywords,
		QuestionsLimit: g.QuestionsLimit,
	}
}

// TokenCacheEntry is what the auth gate remembers about a verified bearer token.
type TokenCacheEntry struct {
	PlayerID        string `json:"player_id"`
	ExpirationEpoch int64  `json:"expiration_epoch"`
}
