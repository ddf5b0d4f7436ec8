package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forPelevin/vidsum/internal/chat"
	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/pipeline"
	"github.com/forPelevin/vidsum/internal/usecase"
)

type transcribeRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
	NoCache  bool   `json:"no_cache"`
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if !decode(w, r, &req) {
		return
	}
	src, err := s.mediaSource(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.URL = src
	if !req.NoCache && req.URL != "" {
		j, ok, err := s.d.Orchestrator.Cached(r.Context(), jobs.KindTranscribe, req.URL)
		if err != nil {
			s.d.Log.Warn("cache lookup failed", "source", req.URL, "error", err)
		}
		if ok {
			writeJSON(w, http.StatusOK, jobAccepted{JobID: j.ID, Status: j.Status, Cached: true})
			return
		}
	}
	s.submitted(w, r, pipeline.Request{
		Kind:     jobs.KindTranscribe,
		Source:   req.URL,
		Language: req.Language,
	})
}

type summarizeRequest struct {
	TranscriptPath string `json:"transcript_path"`
	TranscriptText string `json:"transcript_text"`
	OutputLanguage string `json:"output_language"`
	Language       string `json:"language"`
	Model          string `json:"model"`
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := s.localPath(req.TranscriptPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TranscriptPath = path
	if req.OutputLanguage == "" {
		req.OutputLanguage = usecase.OutputEnglish
	}
	s.submitted(w, r, pipeline.Request{
		Kind:           jobs.KindSummarize,
		TranscriptPath: req.TranscriptPath,
		Text:           req.TranscriptText,
		OutputLanguage: req.OutputLanguage,
		Language:       req.Language,
		Model:          req.Model,
	})
}

type extractClipsRequest struct {
	TranscriptPath string  `json:"transcript_path"`
	VideoPath      string  `json:"video_path"`
	NumClips       int     `json:"num_clips"`
	MinDuration    float64 `json:"min_duration"`
	MaxDuration    float64 `json:"max_duration"`
	Merge          *bool   `json:"merge"`
	Reencode       bool    `json:"reencode"`
	Model          string  `json:"model"`
}

func (s *Server) extractClips(w http.ResponseWriter, r *http.Request) {
	var req extractClipsRequest
	if !decode(w, r, &req) {
		return
	}
	video, err := s.mediaSource(req.VideoPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	transcript, err := s.localPath(req.TranscriptPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b := s.d.Bounds
	if req.NumClips != 0 {
		b.Count = req.NumClips
	}
	if req.MinDuration != 0 {
		b.MinDuration = req.MinDuration
	}
	if req.MaxDuration != 0 {
		b.MaxDuration = req.MaxDuration
	}
	merge := req.Merge == nil || *req.Merge
	s.submitted(w, r, pipeline.Request{
		Kind:           jobs.KindExtractClips,
		Source:         video,
		TranscriptPath: transcript,
		Bounds:         b,
		Reencode:       req.Reencode,
		Merge:          merge,
		Model:          req.Model,
	})
}

type chatStartRequest struct {
	TranscriptPath string `json:"transcript_path"`
	TranscriptText string `json:"transcript_text"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

func (s *Server) startChat(w http.ResponseWriter, r *http.Request) {
	var req chatStartRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := s.localPath(req.TranscriptPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, err := usecase.New(usecase.Deps{Log: s.d.Log}).TranscriptText(path, req.TranscriptText)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Transcript required")
		return
	}
	if s.d.NewLLM == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	llm, err := s.d.NewLLM(r.Context(), req.Provider, req.Model)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	id := s.d.Chats.Add(chat.NewSession(llm, text, req.Model))
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "message": "Chat session started"})
}

type chatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatMessage streams the reply as plain text. Failures after the first
// chunk are reported inline since the status is already sent.
func (s *Server) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if !decode(w, r, &req) {
		return
	}
	sess, ok := s.d.Chats.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	err := sess.Stream(r.Context(), req.Message, func(chunk string) error {
		if _, err := fmt.Fprint(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		s.d.Log.Warn("chat stream failed", "session_id", req.SessionID, "error", err)
		fmt.Fprintf(w, "Error: %v", err)
	}
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.d.Chats.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": sess.History()})
}

func (s *Server) endChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.d.Chats.Remove(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.d.Log.Warn("close chat client failed", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
