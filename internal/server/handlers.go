package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/regsight/regsight/internal/auth"
	"github.com/regsight/regsight/internal/ingest"
	"github.com/regsight/regsight/internal/ledger"
	"github.com/regsight/regsight/internal/model"
	"github.com/regsight/regsight/internal/quality"
	"github.com/regsight/regsight/internal/reconcile"
	"github.com/regsight/regsight/internal/register"
	"github.com/regsight/regsight/internal/score"
	"github.com/regsight/regsight/internal/storage"
)

// Store is the read surface handlers hit directly, without a service in
// between. *storage.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetRecord(ctx context.Context, identifier string) (model.DecisionRecord, error)
	AuditTrail(ctx context.Context, tableName, recordID string) ([]model.AuditEntry, error)
	RecentAuditEntries(ctx context.Context, limit int, kind *model.EventKind) ([]model.AuditEntry, error)
	ResolveQualityIssue(ctx context.Context, id uuid.UUID, status model.IssueStatus, resolvedBy, notes string) error
	ListScoreSnapshots(ctx context.Context, category, jurisdiction string, limit int) ([]model.ScoreSnapshot, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store      Store
	tokens     *auth.TokenManager
	processor  *ingest.Processor
	ledger     *ledger.Ledger
	checker    *quality.Checker
	reconciler *reconcile.Engine
	register   *register.Register
	scores     *score.Engine

	adminKeyHash        string
	qualityWindow       time.Duration
	maxRequestBodyBytes int64
	startedAt           time.Time
	version             string
	logger              *slog.Logger
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store      Store
	Tokens     *auth.TokenManager
	Processor  *ingest.Processor
	Ledger     *ledger.Ledger
	Checker    *quality.Checker
	Reconciler *reconcile.Engine
	Register   *register.Register
	Scores     *score.Engine

	AdminKeyHash        string // Argon2id hash of the bootstrap admin key.
	QualityWindow       time.Duration
	MaxRequestBodyBytes int64
	Version             string
	Logger              *slog.Logger
}

// NewHandlers creates a Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		tokens:              d.Tokens,
		processor:           d.Processor,
		ledger:              d.Ledger,
		checker:             d.Checker,
		reconciler:          d.Reconciler,
		register:            d.Register,
		scores:              d.Scores,
		adminKeyHash:        d.AdminKeyHash,
		qualityWindow:       d.QualityWindow,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		startedAt:           time.Now(),
		version:             d.Version,
		logger:              d.Logger,
	}
}

type authTokenRequest struct {
	Actor  string    `json:"actor"`
	APIKey string    `json:"api_key"`
	Role   auth.Role `json:"role"`
}

type authTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleAuthToken handles POST /auth/token. The bootstrap admin key can
// mint a session for any role.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req authTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	if h.adminKeyHash == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, errCodeUnauthorized, "token issuance is not configured")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, h.adminKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, errCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.tokens.IssueToken(req.Actor, req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, authTokenResponse{Token: token, ExpiresAt: expiresAt})
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, errCodeInternal, "database unreachable")
		return
	}
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.version,
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
	})
}

type ingestRequest struct {
	Candidates []model.Candidate `json:"candidates"`
}

type ingestResponse struct {
	ingest.BatchResult
	Reconciliation reconcile.Result `json:"reconciliation"`
}

// HandleIngest handles POST /v1/ingest: resolve the batch, then reconcile
// what the batch claimed against what the store holds.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "candidates must not be empty")
		return
	}

	actor := "ingest"
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		actor = claims.Actor
	}

	result := h.processor.ProcessBatch(r.Context(), req.Candidates, actor)

	// Quality screening is advisory and per successful resolution.
	for _, res := range result.Resolutions {
		rec, err := h.store.GetRecord(r.Context(), res.Identifier)
		if err != nil {
			continue
		}
		h.checker.Screen(r.Context(), rec)
	}

	// Only identifiers the batch successfully resolved are expected to be
	// present; failed candidates were never written.
	expected := make([]string, 0, len(result.Resolutions))
	for _, res := range result.Resolutions {
		expected = append(expected, res.Identifier)
	}
	recon, err := h.reconciler.Reconcile(r.Context(), expected)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "reconciliation failed")
		return
	}

	writeJSON(w, r, http.StatusOK, ingestResponse{BatchResult: result, Reconciliation: recon})
}

// HandleGetRecord handles GET /v1/records/{identifier}.
func (h *Handlers) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetRecord(r.Context(), r.PathValue("identifier"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, errCodeNotFound, "record not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleRecordHistory handles GET /v1/records/{identifier}/history.
func (h *Handlers) HandleRecordHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.History(r.Context(), r.PathValue("identifier"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "history lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

// HandleAuditTrail handles GET /v1/audit/{table}/{record_id}.
func (h *Handlers) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.AuditTrail(r.Context(), r.PathValue("table"), r.PathValue("record_id"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "audit lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// HandleRecentAudit handles GET /v1/audit/recent?limit=&kind=.
func (h *Handlers) HandleRecentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "limit must be 1-1000")
			return
		}
		limit = n
	}
	var kind *model.EventKind
	if v := r.URL.Query().Get("kind"); v != "" {
		k := model.EventKind(v)
		if !k.Valid() {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "unknown event kind")
			return
		}
		kind = &k
	}

	entries, err := h.store.RecentAuditEntries(r.Context(), limit, kind)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "audit lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// HandleQualityReport handles GET /v1/quality/report.
func (h *Handlers) HandleQualityReport(w http.ResponseWriter, r *http.Request) {
	window := h.qualityWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid window")
			return
		}
		window = d
	}
	report, err := h.checker.DailyReport(r.Context(), window)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "report failed")
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

type resolveIssueRequest struct {
	Status model.IssueStatus `json:"status"`
	Notes  string            `json:"notes"`
}

// HandleResolveIssue handles POST /v1/quality/issues/{id}/resolve.
func (h *Handlers) HandleResolveIssue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid issue id")
		return
	}
	var req resolveIssueRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	actor := ClaimsFromContext(r.Context()).Actor

	if err := h.store.ResolveQualityIssue(r.Context(), id, req.Status, actor, req.Notes); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, errCodeNotFound, "no open issue with that id")
		default:
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": string(req.Status)})
}

type reconcileRequest struct {
	Expected []string `json:"expected"`
}

// HandleReconcile handles POST /v1/reconcile for out-of-band checks.
func (h *Handlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	res, err := h.reconciler.Reconcile(r.Context(), req.Expected)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "reconciliation failed")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type registerItemRequest struct {
	Candidate model.Candidate `json:"candidate"`
	Reason    string          `json:"reason"`
}

// HandleRegisterUnclassified handles POST /v1/unclassified.
func (h *Handlers) HandleRegisterUnclassified(w http.ResponseWriter, r *http.Request) {
	var req registerItemRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	item, err := h.register.Add(r.Context(), req.Candidate, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateIdentifier):
			writeError(w, r, http.StatusConflict, errCodeConflict, "identifier already registered")
		case errors.Is(err, register.ErrInvalidItem):
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, errCodeInternal, "registration failed")
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, item)
}

// HandleGetUnclassified handles GET /v1/unclassified/{identifier}.
func (h *Handlers) HandleGetUnclassified(w http.ResponseWriter, r *http.Request) {
	item, err := h.register.Get(r.Context(), r.PathValue("identifier"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, errCodeNotFound, "item not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

// HandleOverdueUnclassified handles GET /v1/unclassified/overdue.
func (h *Handlers) HandleOverdueUnclassified(w http.ResponseWriter, r *http.Request) {
	items, err := h.register.Overdue(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

// HandleClaimUnclassified handles POST /v1/unclassified/{identifier}/claim.
func (h *Handlers) HandleClaimUnclassified(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	actor := ClaimsFromContext(r.Context()).Actor
	if err := h.register.Claim(r.Context(), identifier, actor); err != nil {
		h.writeRegisterError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": string(model.StatusUnderReview)})
}

type resolveItemRequest struct {
	Category string `json:"category"`
	Notes    string `json:"notes"`
}

// HandleResolveUnclassified handles POST /v1/unclassified/{identifier}/resolve.
func (h *Handlers) HandleResolveUnclassified(w http.ResponseWriter, r *http.Request) {
	var req resolveItemRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	identifier := r.PathValue("identifier")
	actor := ClaimsFromContext(r.Context()).Actor
	if err := h.register.Resolve(r.Context(), identifier, req.Category, actor, req.Notes); err != nil {
		h.writeRegisterError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": string(model.StatusResolved)})
}

type escalateItemRequest struct {
	Notes string `json:"notes"`
}

// HandleEscalateUnclassified handles POST /v1/unclassified/{identifier}/escalate.
func (h *Handlers) HandleEscalateUnclassified(w http.ResponseWriter, r *http.Request) {
	var req escalateItemRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	identifier := r.PathValue("identifier")
	actor := ClaimsFromContext(r.Context()).Actor
	if err := h.register.Escalate(r.Context(), identifier, actor, req.Notes); err != nil {
		h.writeRegisterError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": string(model.StatusEscalated)})
}

func (h *Handlers) writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusConflict, errCodeConflict, "item not found or not in an eligible state")
	case errors.Is(err, register.ErrInvalidItem):
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "transition failed")
	}
}

type computeScoreRequest struct {
	Evidence model.EvidenceAggregate `json:"evidence"`
	Weights  *model.Weights          `json:"weights,omitempty"`
}

// HandleComputeScore handles POST /v1/scores. Weights default to the
// current published scheme when the caller does not supply them.
func (h *Handlers) HandleComputeScore(w http.ResponseWriter, r *http.Request) {
	var req computeScoreRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	weights := score.DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}

	snap, err := h.scores.Compute(r.Context(), req.Evidence, weights)
	if err != nil {
		var missing *score.MissingInputError
		if errors.As(err, &missing) || errors.Is(err, score.ErrInvalidWeights) {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "score computation failed")
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleListScores handles GET /v1/scores?category=&jurisdiction=&limit=.
func (h *Handlers) HandleListScores(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	jurisdiction := r.URL.Query().Get("jurisdiction")
	if category == "" || jurisdiction == "" {
		writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "category and jurisdiction are required")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}

	snaps, err := h.store.ListScoreSnapshots(r.Context(), category, jurisdiction, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, "lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, snaps)
}
