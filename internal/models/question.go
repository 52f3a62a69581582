// internal/models/question.go
package models

// Question is one generated quiz question. QuestionID is dense and zero-based within a game.
// Solution indexes into Options and must never be sent to a client before it answers.
type Question struct {
	GameID        string   `json:"-"`
	QuestionID    int      `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	Solution      int      `json:"-"`
	Clarification string   `json:"-"`
}

// PublicQuestion is the client view of a Question.
type PublicQuestion struct {
	QuestionID int      `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
}

// Public strips the solution and clarification.
func (q Question) Public() PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		QuestionID: q.QuestionID,
		Prompt:     q.Prompt,
		Options:    options,
	}
}

// Feedback is the scoring result returned for an answer.
type Feedback struct {
	Result        bool   `json:"result"`
	Solution      int    `json:"solution"`
	Clarification string `json:"clarification"`
}

// AskedQuestion is a question posed to the player together with the game's question count,
// so a client can step through the quiz.
type AskedQuestion struct {
	PublicQuestion
	Total int `json:"total"`
}
