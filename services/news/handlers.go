package news

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/httputil"
)

// ExtractRequest is the body of POST /news/extract.
type ExtractRequest struct {
	URL string `json:"url"`
}

// TextResponse carries extracted or summarized text.
type TextResponse struct {
	Text string `json:"text"`
}

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/news/headlines", s.handleHeadlines).Methods(http.MethodGet)
	r.HandleFunc("/news/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/news/bias", s.handleBias).Methods(http.MethodGet)
	r.HandleFunc("/news/bias/{source}", s.handleBiasFor).Methods(http.MethodGet)
	r.HandleFunc("/news/extract", s.handleExtract).Methods(http.MethodPost)
	r.HandleFunc("/news/summarize", s.handleSummarize).Methods(http.MethodPost)
}

func (s *Service) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Headlines(r.Context(), HeadlinesQuery{
		Country:  q.Get("country"),
		Category: q.Get("category"),
		Page:     intParam(q.Get("page")),
		PageSize: intParam(q.Get("pageSize")),
	})
	if err != nil {
		s.upstreamError(w, r, "headlines", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Search(r.Context(), SearchQuery{
		Query:    q.Get("q"),
		SortBy:   q.Get("sortBy"),
		Page:     intParam(q.Get("page")),
		PageSize: intParam(q.Get("pageSize")),
	})
	if errors.Is(err, ErrEmptyQuery) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		s.upstreamError(w, r, "search", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (s *Service) handleBias(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.Bias())
}

func (s *Service) handleBiasFor(w http.ResponseWriter, r *http.Request) {
	rating, ok := s.BiasFor(mux.Vars(r)["source"])
	if !ok {
		httputil.NotFound(w, "no rating for source")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rating)
}

func (s *Service) handleExtract(w http.ResponseWriter, r *http.Request) {
	var in ExtractRequest
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.URL) == "" {
		httputil.BadRequest(w, "url is required")
		return
	}
	text, err := s.Extract(r.Context(), in.URL)
	if err != nil {
		s.upstreamError(w, r, "extract", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TextResponse{Text: text})
}

func (s *Service) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var in SummarizeRequest
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.URL) == "" && strings.TrimSpace(in.Text) == "" {
		httputil.BadRequest(w, "url or text is required")
		return
	}
	text, err := s.Summarize(r.Context(), in)
	if err != nil {
		s.upstreamError(w, r, "summarize", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TextResponse{Text: text})
}

func (s *Service) upstreamError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrProviderNotConfigured) {
		httputil.WriteError(w, r, http.StatusServiceUnavailable, "not_configured", err.Error())
		return
	}
	s.log.WithContext(r.Context()).WithError(err).WithField("op", op).Warn("news upstream failed")
	httputil.BadGateway(w, "news provider unavailable")
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
