package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nexuslog/internal/model"
	"nexuslog/internal/store"
)

const (
	defaultUsageLimit = 100
	maxUsageLimit     = 1000
	defaultUsageDays  = 30
	defaultIdeaLimit  = 100
)

func (s *server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.categories.Tree(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	out := make([]model.CategoryNode, 0, len(nodes))
	for _, n := range nodes {
		node := model.CategoryNode{Category: toModelCategory(&n.Category), Subcategories: make([]model.Category, 0, len(n.Children))}
		for i := range n.Children {
			node.Subcategories = append(node.Subcategories, toModelCategory(&n.Children[i]))
		}
		out = append(out, node)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "name is required", nil)
		return
	}

	ctx := r.Context()
	if req.ParentID > 0 {
		parent, err := s.store.GetCategory(ctx, req.ParentID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		if !parent.TopLevel() {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request", "subcategories cannot be nested", nil)
			return
		}
	} else if s.cfg.MaxTopLevelCategories > 0 {
		n, err := s.store.CountTopLevelCategories(ctx)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		if n >= s.cfg.MaxTopLevelCategories {
			s.writeError(w, r, http.StatusConflict, "category_limit", "top-level category limit reached", map[string]any{"limit": s.cfg.MaxTopLevelCategories})
			return
		}
	}

	c, err := s.store.CreateCategory(ctx, req.Name, req.Description, req.ParentID)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toModelCategory(c))
}

func (s *server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req model.CategoryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" && strings.TrimSpace(req.Description) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "name or description is required", nil)
		return
	}
	c, err := s.store.UpdateCategory(r.Context(), id, req.Name, req.Description)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModelCategory(c))
}

func (s *server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSubcategories(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetCategory(r.Context(), id); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	subs, err := s.store.Subcategories(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	out := make([]model.Category, 0, len(subs))
	for i := range subs {
		out = append(out, toModelCategory(&subs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListContentIdeas(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultIdeaLimit)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	ideas, err := s.store.ListContentIdeas(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")), limit)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	out := make([]model.ContentIdea, 0, len(ideas))
	for i := range ideas {
		out = append(out, toModelIdea(&ideas[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleUpdateContentIdea(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req model.ContentIdeaUpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Status == nil && req.Title == nil && req.AIPrompt == nil && req.OutputTypes == nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "no fields to update", nil)
		return
	}
	if req.Status != nil && strings.TrimSpace(*req.Status) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "status cannot be empty", nil)
		return
	}

	idea, err := s.store.UpdateContentIdea(r.Context(), id, store.ContentIdeaUpdate{
		Status:      req.Status,
		Title:       req.Title,
		AIPrompt:    req.AIPrompt,
		OutputTypes: req.OutputTypes,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModelIdea(idea))
}

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	out := make([]model.Project, 0, len(projects))
	for i := range projects {
		out = append(out, toModelProject(&projects[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req model.ProjectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "name is required", nil)
		return
	}
	if req.CategoryID > 0 {
		if _, err := s.store.GetCategory(r.Context(), req.CategoryID); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
	}

	p := &store.Project{
		Name:   strings.TrimSpace(req.Name),
		Tasks:  store.StringList(req.Tasks),
		Status: strings.TrimSpace(req.Status),
	}
	p.Description.String, p.Description.Valid = req.Description, req.Description != ""
	p.CategoryID.Int64, p.CategoryID.Valid = req.CategoryID, req.CategoryID > 0
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toModelProject(p))
}

func (s *server) handleListConfig(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListConfig(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	out := make([]model.ConfigItem, 0, len(items))
	for _, it := range items {
		out = append(out, model.ConfigItem{Key: it.Key, Value: it.Value, UpdatedAt: unixTime(it.UpdatedAt)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "key is required", nil)
		return
	}
	var req model.ConfigUpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Value) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "value is required", nil)
		return
	}
	item, err := s.store.SetConfig(r.Context(), key, req.Value)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ConfigItem{Key: item.Key, Value: item.Value, UpdatedAt: unixTime(item.UpdatedAt)})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleUsage(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultUsageLimit)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	days, err := queryInt(r, "days", defaultUsageDays)
	if err != nil || days == 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "days must be a positive integer", nil)
		return
	}
	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	ctx := r.Context()
	summary, err := s.store.UsageSummary(ctx, since)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	recent, err := s.store.RecentUsage(ctx, min(limit, maxUsageLimit))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	resp := model.UsageResponse{
		Since:   since,
		Summary: make([]model.ProviderCost, 0, len(summary)),
		Recent:  make([]model.UsageRecord, 0, len(recent)),
	}
	for _, p := range summary {
		resp.TotalCostUSD += p.CostUSD
		resp.Summary = append(resp.Summary, model.ProviderCost(p))
	}
	for _, u := range recent {
		resp.Recent = append(resp.Recent, model.UsageRecord{
			Timestamp:    unixTime(u.Timestamp),
			Provider:     u.Provider,
			Model:        u.Model,
			Feature:      u.Feature,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			CostUSD:      u.CostUSD,
			Details:      u.Details,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toModelCategory(c *store.Category) model.Category {
	return model.Category{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description.String,
		ParentID:    optionalID(c.ParentID.Int64, c.ParentID.Valid),
		CreatedAt:   unixTime(c.CreatedAt),
	}
}

func toModelIdea(i *store.ContentIdea) model.ContentIdea {
	types := []string(i.OutputTypes)
	if types == nil {
		types = []string{}
	}
	return model.ContentIdea{
		ID:              i.ID,
		EntryID:         i.EntryID,
		Title:           i.Title,
		IdeaDescription: i.IdeaDescription,
		AIPrompt:        i.AIPrompt,
		OutputTypes:     types,
		Status:          i.Status,
		CreatedAt:       unixTime(i.CreatedAt),
		UpdatedAt:       unixTime(i.UpdatedAt),
	}
}

func toModelProject(p *store.Project) model.Project {
	tasks := []string(p.Tasks)
	if tasks == nil {
		tasks = []string{}
	}
	return model.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description.String,
		CategoryID:  optionalID(p.CategoryID.Int64, p.CategoryID.Valid),
		Tasks:       tasks,
		Status:      p.Status,
		CreatedAt:   unixTime(p.CreatedAt),
	}
}
