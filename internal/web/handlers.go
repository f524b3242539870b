package web

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"telegram-linkgrabber/internal/domain/accounts"
	"telegram-linkgrabber/internal/domain/commands"
)

// accountRequest — тело запросов операций над аккаунтом.
type accountRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code,omitempty"`
	Password string `json:"password,omitempty"`
}

// sourceRequest — тело запроса назначения категории источнику.
type sourceRequest struct {
	Source   string `json:"source"`
	Category string `json:"category"`
}

// handleHealth — проверка живости процесса.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.executor.Status(r.Context()))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.executor.ListAccounts(r.Context()))
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, s.executor.AddAccount(r.Context(), req.Phone))
}

func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, s.executor.SubmitCode(r.Context(), req.Phone, req.Code))
}

func (s *Server) handleSubmitPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, s.executor.SubmitPassword(r.Context(), req.Phone, req.Password))
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, s.executor.RemoveAccount(r.Context(), req.Phone))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.executor.RunExtraction(r.Context()))
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	onlyNew, _ := strconv.ParseBool(r.URL.Query().Get("new"))
	s.writeResult(w, s.executor.Links(r.Context(), category, onlyNew))
}

func (s *Server) handleClearNew(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.executor.ClearNewLinks(r.Context()))
}

// handleExportCSV отдаёт все ссылки файлом CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	res := s.executor.Links(r.Context(), "", false)
	if !res.Success {
		s.writeResult(w, res)
		return
	}
	links, _ := res.Payload.([]commands.LinkInfo)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="links.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"url", "kind", "source", "category", "discovered_at"})
	for _, link := range links {
		_ = writer.Write([]string{link.URL, link.Kind, link.Source, link.Category, link.DiscoveredAt.Format(time.RFC3339)})
	}
	writer.Flush()
}

func (s *Server) handleSetSourceCategory(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.writeResult(w, s.executor.SetSourceCategory(r.Context(), req.Source, req.Category))
}

// decodeAccountRequest разбирает тело запроса операции над аккаунтом.
func decodeAccountRequest(w http.ResponseWriter, r *http.Request) (accountRequest, bool) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	return req, true
}

// writeResult сериализует результат команды, проставляя HTTP-код по его
// машиночитаемому статусу. FloodWait дополнительно выставляет Retry-After.
func (s *Server) writeResult(w http.ResponseWriter, res *commands.Result) {
	if flood, ok := res.Payload.(commands.FloodPayload); ok {
		w.Header().Set("Retry-After", strconv.Itoa(flood.WaitSeconds))
	}
	writeJSON(w, httpStatus(res), res)
}

// httpStatus переводит статус результата в HTTP-код.
func httpStatus(res *commands.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch accounts.Kind(res.Status) {
	case accounts.KindNotFound:
		return http.StatusNotFound
	case accounts.KindAlreadyExists, accounts.KindNotConnected:
		return http.StatusConflict
	case accounts.KindFloodWait:
		return http.StatusTooManyRequests
	case accounts.KindInvalidPhone, accounts.KindInvalidCode, accounts.KindCodeExpired,
		accounts.KindPasswordRequired, accounts.KindInvalidPassword, accounts.KindSignupRequired:
		return http.StatusBadRequest
	case accounts.KindRemote:
		return http.StatusBadGateway
	case accounts.KindStorage:
		return http.StatusInternalServerError
	default:
		if res.Status == "busy" {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
}
