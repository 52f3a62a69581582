// internal/handlers/game.go
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/sirupsen/logrus"
)

// QuizAPI is the handler logic the HTTP layer calls into.
type QuizAPI interface {
	CreateGame(ctx context.Context, playerID string, keywords []string, questionsLimit int) (models.Game, error)
	RetryGeneration(ctx context.Context, playerID, gameID string) (models.Game, error)
	GetGame(ctx context.Context, playerID, gameID string) (models.Game, error)
	ListGamesPage(ctx context.Context, playerID, pageToken string, size int) ([]models.Game, string, error)
	ListQuestions(ctx context.Context, playerID, gameID string) ([]models.PublicQuestion, error)
	GetQuestion(ctx context.Context, playerID, gameID string, questionID int) (models.PublicQuestion, error)
	AskQuestion(ctx context.Context, playerID, gameID string, questionID int) (models.AskedQuestion, error)
	AnswerQuestion(ctx context.Context, playerID, gameID string, questionID, choice int) (models.Feedback, error)
}

// gameResponse is the wire form of a game; creation_time is epoch milliseconds.
type gameResponse struct {
	ID             string            `json:"id"`
	Keywords       []string          `json:"keywords"`
	QuestionsLimit int               `json:"questions_limit"`
	Status         models.GameStatus `json:"status"`
	CreationTime   int64             `json:"creation_time"`
}

func toGameResponse(g models.Game) gameResponse {
	return gameResponse{
		ID:             g.GameID,
		Keywords:       g.Keywords,
		QuestionsLimit: g.QuestionsLimit,
		Status:         g.Status,
		CreationTime:   g.CreationTime.UnixMilli(),
	}
}

type createGameRequest struct {
	Keywords       []string `json:"keywords"`
	QuestionsLimit int      `json:"questions_limit"`
}

type listGamesResponse struct {
	Games         []gameResponse `json:"games"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// ListGamesHandler returns one page of the caller's games, newest first.
func ListGamesHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size, err := intParam("page_size", r.URL.Query().Get("page_size"), 0)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		games, next, err := svc.ListGamesPage(r.Context(), playerID(r), r.URL.Query().Get("page_token"), size)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		resp := listGamesResponse{Games: make([]gameResponse, len(games)), NextPageToken: next}
		for i, g := range games {
			resp.Games[i] = toGameResponse(g)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CreateGameHandler stores a game and queues its question generation. Clients poll
// GET /games/{game} until the status is ready or failed.
func CreateGameHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		g, err := svc.CreateGame(r.Context(), playerID(r), req.Keywords, req.QuestionsLimit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		w.Header().Set("Location", "/games/"+g.GameID)
		writeJSON(w, http.StatusCreated, toGameResponse(g))
	}
}

// GetGameHandler returns one game; this is what clients poll.
func GetGameHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := svc.GetGame(r.Context(), playerID(r), chi.URLParam(r, "game"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toGameResponse(g))
	}
}

// RetryGameHandler re-queues generation for a game whose job never made it onto the queue.
func RetryGameHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := svc.RetryGeneration(r.Context(), playerID(r), chi.URLParam(r, "game"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, toGameResponse(g))
	}
}
