package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/http/response"
)

type ProfileLister interface {
	List() []*profile.Profile
}

type ProfileHandler struct {
	profiles ProfileLister
}

func NewProfileHandler(profiles ProfileLister) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type profileView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Criteria    []string `json:"criteria"`
}

// GET /api/profiles
func (h *ProfileHandler) List(c *gin.Context) {
	out := []profileView{}
	for _, p := range h.profiles.List() {
		out = append(out, profileView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Provider:    p.LLM.Provider,
			Model:       p.LLM.Model,
			Criteria:    p.CriterionNames(),
		})
	}
	response.RespondOK(c, gin.H{"profiles": out})
}
