package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// fake-provider emulates the print provider's three-step order API for local
// runs: create a draft, attach items, confirm. FAIL_FIRST_N simulates an
// outage by answering 503 to the first N requests.

var (
	failFirstN int64 = 0
	reqCount   int64 = 0
	nextID     int64 = 1000

	mu     sync.Mutex
	orders = map[int64]*order{}
)

type order struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"` // draft | confirmed
	Items      int    `json:"items"`
}

func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			failFirstN = n
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("POST /orders", handleCreateDraft)
	mux.HandleFunc("POST /orders/{id}/order-items", handleAddItem)
	mux.HandleFunc("POST /orders/{id}/confirm", handleConfirm)

	addr := ":8083"
	if v := os.Getenv("HTTP_PORT"); v != "" {
		addr = ":" + v
	}
	log.Printf("fake-provider listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// flaky answers 503 for the first FAIL_FIRST_N requests across all endpoints.
func flaky(w http.ResponseWriter, r *http.Request) bool {
	n := atomic.AddInt64(&reqCount, 1)
	if n <= failFirstN {
		log.Printf("FAILING (%d/%d) %s %s", n, failFirstN, r.Method, r.URL.Path)
		http.Error(w, "temporary failure", http.StatusServiceUnavailable)
		return true
	}
	return false
}

func handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	if flaky(w, r) {
		return
	}

	var req struct {
		ExternalID string `json:"external_id"`
		Recipient  struct {
			Name        string `json:"name"`
			Address1    string `json:"address1"`
			City        string `json:"city"`
			CountryCode string `json:"country_code"`
			Zip         string `json:"zip"`
		} `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Recipient.Address1 == "" || req.Recipient.CountryCode == "" {
		http.Error(w, "recipient address incomplete", http.StatusUnprocessableEntity)
		return
	}

	id := atomic.AddInt64(&nextID, 1)
	mu.Lock()
	orders[id] = &order{ExternalID: req.ExternalID, Status: "draft"}
	mu.Unlock()

	log.Printf("fake-provider draft created id=%d external_id=%s", id, req.ExternalID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

func handleAddItem(w http.ResponseWriter, r *http.Request) {
	if flaky(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var req struct {
		Source           string `json:"source"`
		CatalogVariantID int    `json:"catalog_variant_id"`
		Quantity         int    `json:"quantity"`
		Placements       []struct {
			Placement string `json:"placement"`
			Layers    []struct {
				Type string `json:"type"`
				URL  string `json:"url"`
			} `json:"layers"`
		} `json:"placements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.CatalogVariantID == 0 || req.Quantity <= 0 {
		http.Error(w, "invalid catalog variant or quantity", http.StatusUnprocessableEntity)
		return
	}
	if len(req.Placements) == 0 || len(req.Placements[0].Layers) == 0 || req.Placements[0].Layers[0].URL == "" {
		http.Error(w, "missing design file", http.StatusUnprocessableEntity)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	o, ok := orders[id]
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if o.Status != "draft" {
		http.Error(w, "order already confirmed", http.StatusConflict)
		return
	}
	o.Items++

	log.Printf("fake-provider item added order=%d variant=%d qty=%d", id, req.CatalogVariantID, req.Quantity)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func handleConfirm(w http.ResponseWriter, r *http.Request) {
	if flaky(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	o, ok := orders[id]
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if o.Items == 0 {
		http.Error(w, "order has no items", http.StatusUnprocessableEntity)
		return
	}
	o.Status = "confirmed"

	log.Printf("fake-provider confirmed order=%d items=%d", id, o.Items)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}
