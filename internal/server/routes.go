package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/newswire/internal/api"
	"github.com/lazypower/newswire/internal/engine"
	"github.com/lazypower/newswire/internal/importer"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/scheduler"
	"github.com/lazypower/newswire/internal/store"
	"github.com/lazypower/newswire/internal/validation"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := api.Health{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Seconds(),
		DB:      s.db.PingContext(r.Context()) == nil,
	}
	if h.DB {
		h.Items, _ = s.db.CountItems(r.Context())
	}
	if s.tasks != nil {
		h.Task = s.tasks.Running()
	}
	writeJSON(w, http.StatusOK, h)
}

// handleIngest accepts one record in the import format: a JSON object whose
// "kind" selects feed, social or manual.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	b, err := importer.ParseLine(body)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeValidation(w, verr)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := b.Build(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	it, created, err := s.eng.Pipeline.IngestCandidate(r.Context(), c)
	if err != nil {
		if rejected(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeInternal(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	view, err := s.itemView(r.Context(), it)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, status, api.IngestResponse{Created: created, Item: view})
}

func rejected(err error) bool {
	return errors.Is(err, engine.ErrInvalidIdentity) || errors.Is(err, engine.ErrEmptyContent)
}

// handleListItems filters by category (one, or a comma-separated set via
// categories), source name, source kind and visibility. Pages continue from
// next_cursor.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ItemFilter{
		Category:    q.Get("category"),
		Categories:  splitList(q.Get("categories")),
		Source:      strings.TrimSpace(q.Get("source")),
		SourceKind:  store.SourceKind(q.Get("kind")),
		VisibleOnly: q.Get("all") != "true",
	}
	if f.SourceKind != "" && !f.SourceKind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown source kind")
		return
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), 20); err != nil || f.Limit > 100 {
		writeError(w, http.StatusBadRequest, "limit must be an integer up to 100")
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	if raw := q.Get("cursor"); raw != "" {
		if f.Before, err = strconv.ParseInt(raw, 10, 64); err != nil || f.Before <= 0 {
			writeError(w, http.StatusBadRequest, "cursor must be a positive integer")
			return
		}
	}

	items, err := s.db.ListItems(r.Context(), f)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	out := api.ItemList{Items: make([]api.Item, len(items))}
	for i, it := range items {
		out.Items[i] = api.FromItem(it)
	}
	if len(items) == f.Limit {
		if last := items[len(items)-1]; last.PinRank == nil {
			out.NextCursor = last.PublishedAt
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSearchItems matches q against titles and summaries.
func (s *Server) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(q.Get("limit"), 10)
	if err != nil || limit > 50 {
		writeError(w, http.StatusBadRequest, "limit must be an integer up to 50")
		return
	}

	items, err := s.db.SearchItems(r.Context(), text, limit)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	out := api.ItemList{Items: make([]api.Item, len(items))}
	for i, it := range items {
		out.Items[i] = api.FromItem(it)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.ListSources(r.Context())
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	it, err := s.db.GetItem(r.Context(), id)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	view, err := s.itemView(r.Context(), it)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req api.EditRequest
	if !decode(w, r, &req) {
		return
	}

	it, err := s.eng.Pipeline.Update(r.Context(), id, engine.Edit{
		Title:     req.Title,
		Summary:   req.Summary,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
		Tags:      req.Tags,
		Published: req.Published,
		PinRank:   req.PinRank,
		ClearPin:  req.ClearPin,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
		return
	case err != nil && rejected(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeInternal(w, r, err)
		return
	}
	view, err := s.itemView(r.Context(), it)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// itemView converts it and resolves its related references.
func (s *Server) itemView(ctx context.Context, it *store.Item) (api.Item, error) {
	view := api.FromItem(it)
	if len(it.Related) == 0 {
		return view, nil
	}
	related, err := s.db.ItemsByIDs(ctx, it.Related)
	if err != nil {
		return view, err
	}
	for _, rel := range related {
		view.Related = append(view.Related, api.Related{ID: rel.ID, Title: rel.Title, URL: rel.URL})
	}
	return view, nil
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req api.DeviceRequest
	if !decode(w, r, &req) {
		return
	}
	d := &store.Device{
		DeviceID:   strings.TrimSpace(req.DeviceID),
		Token:      strings.TrimSpace(req.Token),
		Categories: dedupe(req.Categories),
	}
	if err := s.db.UpsertDevice(r.Context(), d); err != nil {
		s.writeInternal(w, r, err)
		return
	}
	logging.Ctx(r.Context(), s.log).Info().
		Str("device_id", d.DeviceID).
		Strs("categories", d.Categories).
		Msg("device registered")

	stored, err := s.db.GetDevice(r.Context(), d.DeviceID)
	if err != nil || stored == nil {
		s.writeInternal(w, r, errors.Join(err, store.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, api.FromDevice(stored))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.db.GetDevice(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, api.FromDevice(d))
}

func (s *Server) handleRebuildProfile(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	d, err := s.db.GetDevice(r.Context(), deviceID)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	vec, err := s.eng.Profiles.Build(r.Context(), deviceID)
	switch {
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "device not found")
		return
	case err != nil:
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": deviceID, "interest": vec})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req api.EventRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	d, err := s.db.GetDevice(ctx, req.DeviceID)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	it, err := s.db.GetItem(ctx, req.ItemID)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	ev := &store.Interaction{
		DeviceID: req.DeviceID,
		ItemID:   req.ItemID,
		Kind:     store.InteractionKind(req.Kind),
		DwellMS:  req.DwellMS,
	}
	if err := s.db.AddInteraction(ctx, ev); err != nil {
		s.writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": ev.ID})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	deviceID := q.Get("device_id")

	feed, err := s.eng.Ranker.Feed(r.Context(), deviceID, limit)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	out := api.Feed{
		DeviceID:     deviceID,
		Personalized: feed.Personalized,
		Items:        make([]api.FeedEntry, len(feed.Items)),
	}
	for i, rk := range feed.Items {
		out.Items[i] = api.FeedEntry{
			Item:      api.FromItem(rk.Item),
			Score:     rk.Score,
			Personal:  rk.Personal,
			Freshness: rk.Freshness,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.eng.Classifier.Categories()})
}

// handleTags lists every tag with its item count, most used first.
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.db.ListTags(r.Context())
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	out := make([]api.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, api.Tag{Name: t.Name, Items: t.Items, Link: engine.IsLinkTag(t.Name)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": out})
}

// handleTag returns one tag and the items carrying it, newest first.
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tag name")
		return
	}
	name := engine.NormalizeTagName(raw)
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid tag name")
		return
	}
	tag, err := s.db.GetTagByName(r.Context(), name)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	if tag == nil {
		writeError(w, http.StatusNotFound, "tag not found")
		return
	}
	items, err := s.db.ItemsWithAnyTag(r.Context(), []int64{tag.ID})
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	out := api.TagItems{
		Tag:   api.Tag{Name: tag.Name, Items: len(items), Link: engine.IsLinkTag(tag.Name)},
		Items: make([]api.Item, len(items)),
	}
	for i, it := range items {
		out.Items[i] = api.FromItem(it)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleClassify runs the classifier over ad-hoc text without storing
// anything.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text" validate:"required"`
	}
	if !decode(w, r, &req) {
		return
	}
	res := s.eng.Classifier.Classify(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": res.Categories,
		"top":        res.Top,
		"hits":       s.eng.Classifier.Hits(req.Text),
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	err := s.tasks.Enqueue(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, scheduler.ErrQueued):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, api.TaskResponse{Task: name, Status: "queued"})
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

// splitList parses a comma-separated parameter, dropping blanks and
// duplicates.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return dedupe(strings.Split(raw, ","))
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
