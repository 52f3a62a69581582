package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/sirupsen/logrus"
)

type askRequest struct {
	Question int `json:"question"`
}

type answerRequest struct {
	Question int  `json:"question"`
	Choice   *int `json:"choice"`
}

func ListQuestionsHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questions, err := svc.ListQuestions(r.Context(), playerID(r), chi.URLParam(r, "game"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]models.PublicQuestion{"questions": questions})
	}
}

func GetQuestionHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := intParam("question", chi.URLParam(r, "question"), 0)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		q, err := svc.GetQuestion(r.Context(), playerID(r), chi.URLParam(r, "game"), id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// AskQuestionHandler poses the question named in the body, the first one by default.
func AskQuestionHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		asked, err := svc.AskQuestion(r.Context(), playerID(r), chi.URLParam(r, "game"), req.Question)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, asked)
	}
}

// AnswerQuestionHandler scores a choice and reveals the solution.
func AnswerQuestionHandler(svc QuizAPI, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		if req.Choice == nil {
			writeError(w, logger, apperr.Invalid(apperr.FieldError{Field: "choice", Message: "is required"}))
			return
		}
		fb, err := svc.AnswerQuestion(r.Context(), playerID(r), chi.URLParam(r, "game"), req.Question, *req.Choice)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, fb)
	}
}
