package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bryanwahyu/trapscan/internal/application/cache"
	"github.com/bryanwahyu/trapscan/internal/application/report"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/middleware"
)

type cacheView struct {
	Stats   cache.Stats   `json:"stats"`
	Entries []cache.Entry `json:"entries"`
}

func listCache(w http.ResponseWriter, req *http.Request, c *cache.Cache) error {
	entries, err := c.List(req.Context())
	if err != nil {
		return err
	}
	st, err := c.Stats(req.Context())
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []cache.Entry{}
	}
	return writeJSON(w, http.StatusOK, cacheView{Stats: st, Entries: entries})
}

// GET /v1/cache
func (r *Router) handleCache(w http.ResponseWriter, req *http.Request) error {
	return listCache(w, req, r.Cache)
}

// DELETE /v1/cache
func (r *Router) handleCacheClear(w http.ResponseWriter, req *http.Request) error {
	if err := r.Cache.Clear(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/offline
func (r *Router) handleOffline(w http.ResponseWriter, req *http.Request) error {
	return listCache(w, req, r.Offline.Cache)
}

// DELETE /v1/offline[?url=]
// Without url the whole offline cache is cleared.
func (r *Router) handleOfflineDelete(w http.ResponseWriter, req *http.Request) error {
	var err error
	if u := req.URL.Query().Get("url"); u != "" {
		err = r.Offline.Delete(req.Context(), u)
	} else {
		err = r.Offline.Cache.Clear(req.Context())
	}
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/history?limit=&offset=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit := middleware.ValidateLimit(queryInt(req, "limit"))
	offset := queryInt(req, "offset")
	list, err := r.History.List(req.Context(), limit, offset)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// DELETE /v1/history
func (r *Router) handleHistoryClear(w http.ResponseWriter, req *http.Request) error {
	if err := r.History.Clear(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/history/item?url=
func (r *Router) handleHistoryItem(w http.ResponseWriter, req *http.Request) error {
	u, err := requireURL(req)
	if err != nil {
		return err
	}
	e, err := r.History.Get(req.Context(), u)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, e)
}

// DELETE /v1/history/item?url=
func (r *Router) handleHistoryDelete(w http.ResponseWriter, req *http.Request) error {
	u, err := requireURL(req)
	if err != nil {
		return err
	}
	if err := r.History.Delete(req.Context(), u); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/history/summary?days=30
func (r *Router) handleHistorySummary(w http.ResponseWriter, req *http.Request) error {
	days := middleware.ValidateDays(queryInt(req, "days"))
	s, err := r.History.Summary(req.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

func exportParams(req *http.Request) (report.Format, string, error) {
	f, err := report.ParseFormat(req.URL.Query().Get("format"))
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInvalid, "invalid format", err)
	}
	return f, req.URL.Query().Get("url"), nil
}

// GET /v1/history/export?format=json|csv|md[&url=]
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	if r.Reports == nil {
		return errDisabled
	}
	f, u, err := exportParams(req)
	if err != nil {
		return err
	}
	doc, err := r.Reports.Export(req.Context(), f, u)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	_, err = w.Write(doc.Data)
	return err
}

// POST /v1/history/export?format=&url=
// Uploads the report to object storage and returns its location.
func (r *Router) handlePublish(w http.ResponseWriter, req *http.Request) error {
	if r.Reports == nil {
		return errDisabled
	}
	f, u, err := exportParams(req)
	if err != nil {
		return err
	}
	doc, err := r.Reports.Publish(req.Context(), f, u)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, doc)
}

// GET /v1/history/compare?a=&b=
func (r *Router) handleCompare(w http.ResponseWriter, req *http.Request) error {
	if r.Reports == nil {
		return errDisabled
	}
	q := req.URL.Query()
	c, err := r.Reports.Compare(req.Context(), q.Get("a"), q.Get("b"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, c)
}

// GET /v1/watchlist
func (r *Router) handleWatchlist(w http.ResponseWriter, req *http.Request) error {
	if r.Watchlist == nil {
		return errDisabled
	}
	items, err := r.Watchlist.List(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, items)
}

// POST /v1/watchlist
// Body: {"url": "..."}. The page must have been analyzed before.
func (r *Router) handleWatch(w http.ResponseWriter, req *http.Request) error {
	if r.Watchlist == nil {
		return errDisabled
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateURL(body.URL); err != nil {
		return apperr.Wrap(apperr.KindInvalid, "invalid url", err)
	}
	e, err := r.History.Get(req.Context(), body.URL)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.New(apperr.KindNotFound, "analyze the page before adding it to the watchlist")
	}
	if err != nil {
		return err
	}
	item, err := r.Watchlist.Add(req.Context(), e.Result)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, item)
}

// DELETE /v1/watchlist?id=
func (r *Router) handleUnwatch(w http.ResponseWriter, req *http.Request) error {
	if r.Watchlist == nil {
		return errDisabled
	}
	id := req.URL.Query().Get("id")
	if id == "" {
		return apperr.New(apperr.KindInvalid, "id is required")
	}
	if err := r.Watchlist.Remove(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/watchlist/ack?id=
func (r *Router) handleWatchAck(w http.ResponseWriter, req *http.Request) error {
	if r.Watchlist == nil {
		return errDisabled
	}
	id := req.URL.Query().Get("id")
	if id == "" {
		return apperr.New(apperr.KindInvalid, "id is required")
	}
	if err := r.Watchlist.Acknowledge(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/watchlist/check
func (r *Router) handleWatchCheck(w http.ResponseWriter, req *http.Request) error {
	if r.Watchlist == nil {
		return errDisabled
	}
	rep, err := r.Watchlist.CheckAll(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rep)
}
