package reconciliation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"FundFolioSaas/api/constants"
	"FundFolioSaas/internal/registry"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

// UploadHandler accepts a multipart disclosure file and returns the
// reconciliation preview. Per-sheet failures come back inside the preview;
// only malformed requests fail the call.
func UploadHandler(wf *Workflow) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, constants.ErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(100 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "Failed to parse multipart form: "+err.Error())
			return
		}
		userID := strings.TrimSpace(r.FormValue("user_id"))
		if userID == "" {
			writeError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing 'file' field: "+err.Error())
			return
		}
		defer file.Close()

		fileBytes, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read file: "+err.Error())
			return
		}

		result, err := wf.Submit(r.Context(), fileBytes, header.Filename, userID)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    result,
		})
	})
}

// ConfirmRequest resolves a previewed session. Mappings keys are sheet
// indexes as JSON object keys (strings), values are asset id lists.
type ConfirmRequest struct {
	UserID    string              `json:"user_id"`
	SessionID string              `json:"session_id"`
	Mappings  map[string][]string `json:"mappings"`
}

// ConfirmHandler commits a previewed session. Retrying a confirmed session
// returns success without re-writing.
func ConfirmHandler(wf *Workflow) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, constants.ErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}
		var req ConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			writeError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		if strings.TrimSpace(req.SessionID) == "" {
			writeError(w, http.StatusBadRequest, "session_id required")
			return
		}

		mappings := make(map[int][]string, len(req.Mappings))
		for k, v := range req.Mappings {
			idx, err := strconv.Atoi(k)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid sheet index: "+k)
				return
			}
			mappings[idx] = v
		}

		result, err := wf.Confirm(r.Context(), req.SessionID, req.UserID, mappings)
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionNotFound):
				writeError(w, http.StatusNotFound, constants.ErrSessionNotFound)
			case errors.Is(err, ErrSessionExpired):
				writeError(w, http.StatusGone, constants.ErrSessionExpired)
			case errors.Is(err, ErrSessionWrongUser):
				writeError(w, http.StatusForbidden, constants.ErrSessionWrongUser)
			case errors.Is(err, ErrUnknownAsset):
				writeError(w, http.StatusForbidden, constants.ErrAssetNotFound)
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    result,
		})
	})
}

// ResolveSchemeHandler matches a free-text fund name against the canonical
// scheme registry. Used by the UI to let a user pin an ambiguous sheet to a
// scheme before confirming.
func ResolveSchemeHandler(reg *registry.Registry, matcher *Matcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, constants.ErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			FundName string `json:"fund_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if strings.TrimSpace(req.FundName) == "" {
			writeError(w, http.StatusBadRequest, "fund_name required")
			return
		}
		schemes := reg.Schemes()
		if len(schemes) == 0 {
			writeError(w, http.StatusServiceUnavailable, constants.ErrRegistryEmpty)
			return
		}
		candidates := matcher.Match(req.FundName, TargetsFromSchemes(schemes))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"data":      candidates,
			"count":     len(candidates),
			"refreshed": reg.LastRefreshed(),
		})
	})
}
