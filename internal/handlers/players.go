package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wardenpanel/warden-backend/internal/database"
	"github.com/wardenpanel/warden-backend/internal/models"
	"github.com/wardenpanel/warden-backend/internal/punishments"
	"github.com/wardenpanel/warden-backend/internal/services"
)

// PlayerResponse is the envelope of the player lookup endpoints.
type PlayerResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Player  *models.Player  `json:"player,omitempty"`
	Players []models.Player `json:"players,omitempty"`
	Total   int64           `json:"total,omitempty"`
}

// PunishmentView pairs a stored punishment with its derived effective state.
// Live actions and imported records render through the same deriver, so the
// two paths can never show different statuses for the same history.
type PunishmentView struct {
	models.Punishment
	Effective punishments.EffectiveState `json:"effective"`
}

// PunishmentsResponse is the envelope of the punishment view endpoint.
type PunishmentsResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message,omitempty"`
	PlayerID    string           `json:"player_id,omitempty"`
	Punishments []PunishmentView `json:"punishments"`
}

// GetPlayer handles GET /api/players?id= or ?name=.
func GetPlayer(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	name := r.URL.Query().Get("name")
	if id == "" && name == "" {
		writeJSON(w, http.StatusBadRequest, PlayerResponse{
			Success: false,
			Message: "Provide an id or name query parameter",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	repo := database.PlayersFor(tenant)

	if id != "" {
		cacheKey := services.CacheKey(tenant, "player", id)
		var cached models.Player
		if hit, _ := services.Cache.Get(cacheKey, &cached); hit {
			writeJSON(w, http.StatusOK, PlayerResponse{Success: true, Player: &cached})
			return
		}

		player, err := repo.FindByID(ctx, id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, PlayerResponse{
				Success: false,
				Message: "Failed to look up player",
			})
			return
		}
		if player == nil {
			writeJSON(w, http.StatusNotFound, PlayerResponse{
				Success: false,
				Message: "Player not found",
			})
			return
		}
		services.Cache.Set(cacheKey, player)
		writeJSON(w, http.StatusOK, PlayerResponse{Success: true, Player: player})
		return
	}

	players, err := repo.FindByName(ctx, name, 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, PlayerResponse{
			Success: false,
			Message: "Failed to look up players",
		})
		return
	}
	writeJSON(w, http.StatusOK, PlayerResponse{
		Success: true,
		Players: players,
		Total:   int64(len(players)),
	})
}

// GetPlayerStats handles GET /api/players/stats.
func GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	total, err := database.PlayersFor(tenant).Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, PlayerResponse{
			Success: false,
			Message: "Failed to count players",
		})
		return
	}
	writeJSON(w, http.StatusOK, PlayerResponse{Success: true, Total: total})
}

// GetPlayerPunishments handles GET /api/players/punishments?id=. Each
// punishment carries its effective state derived from the modification
// history at request time.
func GetPlayerPunishments(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, PunishmentsResponse{
			Success: false,
			Message: "Provide an id query parameter",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	player, err := database.PlayersFor(tenant).FindByID(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, PunishmentsResponse{
			Success: false,
			Message: "Failed to look up player",
		})
		return
	}
	if player == nil {
		writeJSON(w, http.StatusNotFound, PunishmentsResponse{
			Success: false,
			Message: "Player not found",
		})
		return
	}

	now := time.Now()
	views := make([]PunishmentView, 0, len(player.Punishments))
	for i := range player.Punishments {
		p := player.Punishments[i]
		views = append(views, PunishmentView{
			Punishment: p,
			Effective:  punishments.Derive(&p, now),
		})
	}
	writeJSON(w, http.StatusOK, PunishmentsResponse{
		Success:     true,
		PlayerID:    player.ID,
		Punishments: views,
	})
}
