package investment

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"FundFolioSaas/api/constants"
	"FundFolioSaas/api/investment/portfolio"
	"FundFolioSaas/api/investment/reconciliation"
	"FundFolioSaas/internal/config"
	"FundFolioSaas/internal/jobs"
	"FundFolioSaas/internal/registry"
	"FundFolioSaas/internal/session"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

func StartInvestmentService(pool *pgxpool.Pool, db *sql.DB) {
	reg := registry.New(pool)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := reg.Reload(ctx); err != nil {
			log.Printf("[INVESTMENT] initial registry load failed (continuing with empty registry): %v", err)
		} else {
			log.Printf("[INVESTMENT] registry loaded: %d schemes", len(reg.Schemes()))
		}
		cancel()
	}

	sessions := session.NewMemoryStore()
	sessions.StartCleaner(config.DefaultSessionCleanerPeriod)

	assets := portfolio.NewStore(db)
	matcher := reconciliation.NewMatcher(nil)
	workflow := reconciliation.NewWorkflow(assets, sessions, matcher, config.DefaultSessionTTL)

	if err := jobs.RunSchemeRegistrySync(jobs.NewDefaultConfig(), pool, reg); err != nil {
		log.Printf("[INVESTMENT] scheme registry sync not scheduled: %v", err)
	}

	router := mux.NewRouter()

	router.Handle("/investment/reconciliation/upload",
		reconciliation.UploadHandler(workflow)).Methods("POST")
	router.Handle("/investment/reconciliation/confirm",
		reconciliation.ConfirmHandler(workflow)).Methods("POST")
	router.Handle("/investment/registry/resolve",
		reconciliation.ResolveSchemeHandler(reg, matcher)).Methods("POST")
	router.HandleFunc("/investment/registry/refresh", RefreshRegistryHandler(pool, reg)).Methods("POST")
	router.HandleFunc("/investment/registry/issuers", IssuersHandler(reg)).Methods("GET")

	router.HandleFunc("/investment/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Investment Service is active"))
	})

	log.Println("Investment Service started on :7143")
	err := http.ListenAndServe(":7143", router)
	if err != nil {
		log.Fatalf("Investment service failed: %v", err)
	}
}

// RefreshRegistryHandler triggers a full AMFI download and snapshot swap on
// demand, outside the nightly schedule. The call blocks until the sync
// finishes so callers see a fresh registry on success.
func RefreshRegistryHandler(pool *pgxpool.Pool, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := jobs.RunSchemeRegistrySyncOnce(jobs.NewDefaultConfig(), pool, reg); err != nil {
			w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"schemes":  len(reg.Schemes()),
			"duration": time.Since(start).String(),
		})
	}
}

// IssuersHandler lists the distinct issuer names in the active snapshot.
func IssuersHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"issuers":   reg.IssuerNames(),
			"refreshed": reg.LastRefreshed(),
		})
	}
}
