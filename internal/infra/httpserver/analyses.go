package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	domainjobs "github.com/bryanwahyu/trapscan/internal/domain/jobs"
	"github.com/bryanwahyu/trapscan/internal/infra/extract"
	"github.com/bryanwahyu/trapscan/internal/middleware"
)

type analysisBody struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	PageType     []string `json:"pageType"`
	SkipCache    bool     `json:"skipCache"`
	AnalysisMode string   `json:"analysisMode"`
	CustomPrompt string   `json:"customPrompt"`
}

func (b analysisBody) request() (analysis.Request, error) {
	if err := middleware.ValidateAnalysisMode(b.AnalysisMode); err != nil {
		return analysis.Request{}, apperr.Wrap(apperr.KindInvalid, "invalid analysisMode", err)
	}
	return analysis.Request{
		URL:          strings.TrimSpace(b.URL),
		Title:        middleware.SanitizeString(b.Title),
		Text:         b.Text,
		PageType:     b.PageType,
		SkipCache:    b.SkipCache,
		Mode:         ai.Mode(strings.ToLower(b.AnalysisMode)),
		CustomPrompt: middleware.SanitizeString(b.CustomPrompt),
	}, nil
}

// POST /v1/analyses
// Starts the analysis in the background and answers right away.
func (r *Router) handleStartAnalysis(w http.ResponseWriter, req *http.Request) error {
	var body analysisBody
	if err := decode(req, &body); err != nil {
		return err
	}
	ar, err := body.request()
	if err != nil {
		return err
	}
	ack, err := r.Analysis.StartAsync(req.Context(), ar)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, ack)
}

// POST /v1/analyses/sync
func (r *Router) handleAnalyzeSync(w http.ResponseWriter, req *http.Request) error {
	var body analysisBody
	if err := decode(req, &body); err != nil {
		return err
	}
	ar, err := body.request()
	if err != nil {
		return err
	}
	out, err := r.Analysis.Analyze(req.Context(), ar)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// GET /v1/analyses/status?url=&wait=30s
// With wait the call blocks until the job finishes or the wait elapses.
func (r *Router) handleAnalysisStatus(w http.ResponseWriter, req *http.Request) error {
	url, err := requireURL(req)
	if err != nil {
		return err
	}
	if wait := r.waitParam(req); wait > 0 {
		ch, cancel, ok := r.Analysis.Jobs.Subscribe(url)
		if ok {
			timer := time.NewTimer(wait)
			select {
			case <-ch:
			case <-timer.C:
			case <-req.Context().Done():
			}
			timer.Stop()
			cancel()
		}
	}
	return writeJSON(w, http.StatusOK, r.Analysis.Status(url))
}

func (r *Router) waitParam(req *http.Request) time.Duration {
	raw := req.URL.Query().Get("wait")
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// bare seconds
		d, err = time.ParseDuration(raw + "s")
		if err != nil {
			return 0
		}
	}
	if d > r.opts.MaxWait {
		d = r.opts.MaxWait
	}
	return d
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origin is already checked by the CORS and API key layers
	CheckOrigin: func(*http.Request) bool { return true },
}

// GET /v1/analyses/events?url=
// Pushes the current job view, then the terminal one, then closes.
func (r *Router) handleAnalysisEvents(w http.ResponseWriter, req *http.Request) {
	url, err := requireURL(req)
	if err != nil {
		writeError(w, req, err)
		return
	}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// drain client frames so close and ping control frames are processed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	view := r.Analysis.Status(url)
	if err := conn.WriteJSON(view); err != nil {
		return
	}
	if view.Status == domainjobs.StatusAnalyzing {
		ch, cancel, ok := r.Analysis.Jobs.Subscribe(url)
		if ok {
			select {
			case job, open := <-ch:
				if open {
					if err := conn.WriteJSON(job.View()); err != nil {
						cancel()
						return
					}
				}
			case <-gone:
			case <-req.Context().Done():
			}
			cancel()
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

type extractBody struct {
	URL       string `json:"url"`
	HTML      string `json:"html"`
	RedactPII *bool  `json:"redactPII"`
}

type extractResponse struct {
	extract.Page
	Relevant bool `json:"relevant"`
}

// POST /v1/extract
// Extracts readable text from inline HTML, or fetches url when no HTML is sent.
func (r *Router) handleExtract(w http.ResponseWriter, req *http.Request) error {
	var body extractBody
	if err := decode(req, &body); err != nil {
		return err
	}

	opts := extract.Options{}
	if body.RedactPII != nil {
		opts.RedactPII = *body.RedactPII
	} else if cfg, err := r.Settings.Get(req.Context()); err == nil {
		opts.RedactPII = cfg.RedactPII
	}

	var (
		page extract.Page
		err  error
	)
	if body.HTML != "" {
		page, err = extract.Extract([]byte(body.HTML), body.URL, opts)
	} else {
		if r.Fetcher == nil {
			return errDisabled
		}
		validate := middleware.ValidateFetchURL
		if r.opts.AllowPrivateFetch {
			validate = middleware.ValidateURL
		}
		if verr := validate(body.URL); verr != nil {
			return apperr.Wrap(apperr.KindInvalid, "invalid url", verr)
		}
		page, err = r.Fetcher.FetchPage(req.Context(), body.URL, opts)
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, extractResponse{Page: page, Relevant: extract.IsRelevant(page.PageTypes)})
}
