package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/alexandria-go/alexidx/internal/apierr"
	"github.com/alexandria-go/alexidx/internal/query"
	"github.com/alexandria-go/alexidx/internal/workerpool"
)

// searchResult is one entry of the JSON response's "results" array
// (spec §6 JSON response schema).
type searchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}

// searchResponse mirrors spec §6's textual-search JSON schema exactly.
type searchResponse struct {
	Status                string         `json:"status"`
	TimeMs                float64        `json:"time_ms"`
	TotalFound            int            `json:"total_found"`
	TotalURLLinksFound    int            `json:"total_url_links_found"`
	TotalDomainLinksFound int            `json:"total_domain_links_found"`
	LinkURLMatches        int            `json:"link_url_matches"`
	Results               []searchResult `json:"results"`
}

// handleSearch implements the deduplicated/near-duplicate textual search
// path (spec §6 "q present ... deduplicated textual search" / "d=a =>
// include all near-duplicates"). It checks the whole-response cache
// first, runs the query engine otherwise, and resolves each matched
// document to a snippet record before writing JSON.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, queryText string, includeDuplicates bool) {
	cacheKey := fmt.Sprintf("q=%s&d=%v", queryText, includeDuplicates)
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(cacheKey); ok {
			s.writeSearchResponse(w, r, cached)
			return
		}
	}

	opts := query.Options{IncludeDuplicates: includeDuplicates, Limit: s.Cfg.ResultLimit}
	var resp *query.Response
	err := s.Pool.Run(r.Context(), func(_ *workerpool.Arena) error {
		var runErr error
		resp, runErr = s.Engine.Search(r.Context(), queryText, opts)
		return runErr
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if s.Cache != nil && resp.Status == query.StatusSuccess {
		s.Cache.Set(cacheKey, resp)
	}
	s.writeSearchResponse(w, r, resp)
}

// writeSearchResponse resolves resp's matched documents to snippet
// records (spec §4.7) and writes the JSON envelope of spec §6.
func (s *Server) writeSearchResponse(w http.ResponseWriter, r *http.Request, resp *query.Response) {
	results := make([]searchResult, 0, len(resp.Results))
	for _, m := range resp.Results {
		snip, ok, err := s.Engine.Resolver.Resolve(r.Context(), m.DocumentHash)
		if err != nil {
			results = append(results, searchResult{Score: m.Score})
			continue
		}
		if !ok {
			continue
		}
		results = append(results, searchResult{
			URL:     snip.URL,
			Title:   snip.Title,
			Snippet: snip.Snippet,
			Score:   m.Score,
		})
	}

	respondJSON(w, http.StatusOK, searchResponse{
		Status:                resp.Status,
		TimeMs:                resp.ElapsedMs,
		TotalFound:            resp.TotalFound,
		TotalURLLinksFound:    resp.TotalURLLinksFound,
		TotalDomainLinksFound: resp.TotalDomainLinksFound,
		LinkURLMatches:        resp.LinkURLMatches,
		Results:               results,
	})
}

// handleIds implements spec §6's "i=<query> -> binary body:
// concatenation of raw posting records (no JSON)".
func (s *Server) handleIds(w http.ResponseWriter, r *http.Request, queryText string) {
	unlock := s.Pool.Accept()
	defer unlock()

	body, err := s.Engine.Ids(r.Context(), queryText)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondBinary(w, body)
}

// wordStatsIndex mirrors original_source/tests/api.h's
// json_obj["index"]["words"] / json_obj["index"]["total"] nesting.
type wordStatsIndex struct {
	Words map[string]float64 `json:"words"`
	Total int                `json:"total"`
}

// wordStatsResponse mirrors the word_stats scenario of spec §8
// (TEST-01/TEST-02/TEST-03): per-token document-frequency ratios plus
// the corpus's total document count, nested under "index".
type wordStatsResponse struct {
	Status string         `json:"status"`
	Index  wordStatsIndex `json:"index"`
}

// handleWordStats implements spec §6's "s=<phrase> -> per-token document
// frequency statistics".
func (s *Server) handleWordStats(w http.ResponseWriter, r *http.Request, phrase string) {
	stats, total, err := s.Engine.WordStats(r.Context(), phrase)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wordStatsResponse{
		Status: "success",
		Index:  wordStatsIndex{Words: stats, Total: total},
	})
}

// urlResponse wraps a snippet lookup result (spec §6 "u=<url> ->
// snippet-record lookup by exact URL"). Per spec §8 scenario 7, a
// non-existing URL yields an empty response rather than an error.
type urlResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request, url string) {
	if url == "" {
		respondJSON(w, http.StatusOK, urlResponse{Status: "success"})
		return
	}
	snip, ok, err := s.Engine.Resolver.ResolveByURL(r.Context(), url)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !ok {
		respondJSON(w, http.StatusOK, urlResponse{Status: "success"})
		return
	}
	respondJSON(w, http.StatusOK, urlResponse{Status: "success", URL: snip.URL, Title: snip.Title, Snippet: snip.Snippet})
}

// statusResponse is the operational payload of spec's supplemented
// status endpoint, grounded in original_source/src/api/Worker.cpp's
// separate status_server/ApiStatusResponse.
type statusResponse struct {
	Status       string  `json:"status"`
	UptimeS      float64 `json:"uptime_s"`
	WorkersBusy  int     `json:"workers_busy"`
	WorkerCount  int     `json:"worker_count"`
	MainShards   int     `json:"main_shards"`
	URLShards    int     `json:"url_link_shards"`
	DomainShards int     `json:"domain_link_shards"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		Status:       "success",
		UptimeS:      time.Since(s.StartedAt).Seconds(),
		WorkersBusy:  s.Pool.InFlight(),
		WorkerCount:  s.Pool.Capacity(),
		MainShards:   s.Engine.Main.NumShards(),
		URLShards:    s.Engine.URLLink.NumShards(),
		DomainShards: s.Engine.DomainLink.NumShards(),
	})
}

// writeEngineError maps an apierr.Error's Kind to an HTTP status and the
// spec §6 status=error envelope.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	kind, ok := apierr.KindOf(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch kind {
	case apierr.KindMalformedQuery:
		respondError(w, http.StatusBadRequest, err.Error())
	case apierr.KindIO, apierr.KindIndexMissing:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
