package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/LeventeLantos/meme-forwarder/internal/quota"
	"github.com/LeventeLantos/meme-forwarder/internal/scheduler"
)

type LedgerSource interface {
	Snapshot() map[string]int64
}

type QuotaSource interface {
	Status(now time.Time) quota.Status
}

type Handler struct {
	sched  *scheduler.Scheduler
	ledger LedgerSource
	quota  QuotaSource
	now    func() time.Time
}

func NewHandler(s *scheduler.Scheduler, l LedgerSource, q QuotaSource) *Handler {
	return &Handler{sched: s, ledger: l, quota: q, now: time.Now}
}

type ledgerEntry struct {
	Channel       string `json:"channel"`
	LastMessageID int64  `json:"lastMessageId"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// ListLedger returns the watermarks ordered by channel key.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)
	if limit < 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	snap := h.ledger.Snapshot()
	items := make([]ledgerEntry, 0, len(snap))
	for k, v := range snap {
		items = append(items, ledgerEntry{Channel: k, LastMessageID: v})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Channel < items[j].Channel })

	total := len(items)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)

	writeJSON(w, http.StatusOK, map[string]any{"items": items[offset:end], "total": total})
}

func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")

	id, ok := h.ledger.Snapshot()[channel]
	if !ok {
		http.Error(w, "channel not in ledger", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ledgerEntry{Channel: channel, LastMessageID: id})
}

func (h *Handler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quota.Status(h.now()))
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
