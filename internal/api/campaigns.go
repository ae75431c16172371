package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"whatsapp-commerce/internal/campaign"
	"whatsapp-commerce/internal/models"
	"whatsapp-commerce/internal/store"

	"github.com/gin-gonic/gin"
)

type CampaignHandler struct {
	Campaigns *store.CampaignStore
	Scheduler *campaign.Scheduler
}

func NewCampaignHandler(campaigns *store.CampaignStore, scheduler *campaign.Scheduler) *CampaignHandler {
	return &CampaignHandler{Campaigns: campaigns, Scheduler: scheduler}
}

type createCampaignRequest struct {
	Name    string                  `json:"name"`
	Filter  *models.CampaignFilter  `json:"filter"`
	Policy  *models.CampaignPolicy  `json:"policy"`
	Content *models.CampaignContent `json:"content"`
	TestTo  string                  `json:"test_to"`
}

func (h *CampaignHandler) Create(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	if req.Name == "" {
		req.Name = "Campanha"
	}
	filter := models.CampaignFilter{}
	if req.Filter != nil {
		filter = *req.Filter
	}
	policy := models.CampaignPolicy{Mode: models.ModeOnly24, ThrottleSecondsMin: 60, ThrottleSecondsMax: 150}
	if req.Policy != nil {
		policy = *req.Policy
	}
	content := models.CampaignContent{}
	if req.Content != nil {
		content = *req.Content
	}

	camp, err := h.Campaigns.Create(req.Name, filter, policy, content, req.TestTo)
	if err != nil {
		log.Printf("[campaigns:create] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Falha ao criar campanha"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": camp.ID, "campaign": camp})
}

func (h *CampaignHandler) List(c *gin.Context) {
	camps, err := h.Campaigns.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Falha ao listar campanhas"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "campaigns": camps})
}

func (h *CampaignHandler) Get(c *gin.Context) {
	camp, err := h.Campaigns.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrCampaignNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Campanha não encontrada"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "campaign": camp, "queue": store.DecodeQueue(camp)})
}

func (h *CampaignHandler) Start(c *gin.Context) {
	queued, err := h.Scheduler.Start(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCampaignNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Campanha não encontrada"})
		case errors.Is(err, campaign.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Mensagem (24h) vazia"})
		case errors.Is(err, campaign.ErrNoRecipients):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Nenhum destinatário elegível"})
		default:
			log.Printf("[campaigns:start] %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Falha ao iniciar campanha"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "queued": queued})
}

func (h *CampaignHandler) Pause(c *gin.Context) {
	if err := h.Scheduler.Pause(c.Param("id")); err != nil {
		h.statusError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *CampaignHandler) Resume(c *gin.Context) {
	if err := h.Scheduler.Resume(c.Param("id")); err != nil {
		h.statusError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *CampaignHandler) statusError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrCampaignNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Campanha não encontrada"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
}

// Update replaces an existing campaign's filter, policy, content or test
// target. Running campaigns must be paused first.
func (h *CampaignHandler) Update(c *gin.Context) {
	camp, err := h.Campaigns.Get(c.Param("id"))
	if err != nil {
		h.statusError(c, err)
		return
	}
	if camp.Status == models.CampaignRunning {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "Pause a campanha antes de editar"})
		return
	}

	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	if req.Name != "" {
		camp.Name = req.Name
	}
	if req.Filter != nil {
		b, _ := json.Marshal(req.Filter)
		camp.Filter = string(b)
	}
	if req.Policy != nil {
		b, _ := json.Marshal(req.Policy)
		camp.Policy = string(b)
	}
	if req.Content != nil {
		b, _ := json.Marshal(req.Content)
		camp.Content = string(b)
	}
	camp.TestTo = req.TestTo

	if err := h.Campaigns.Save(camp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Falha ao salvar campanha"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "campaign": camp})
}
