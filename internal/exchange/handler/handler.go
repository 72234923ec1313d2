// Package handler is the HTTP boundary of the exchange engine. It decodes
// requests, calls the service and encodes results; every rule lives in the
// service and domain packages.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medssi/internal/exchange/models"
	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/httputil"
	"medssi/pkg/platform/middleware/auth"
	"medssi/pkg/requestcontext"
)

// Service is the engine surface the handler needs.
type Service interface {
	Offer(ctx context.Context, req models.OfferRequest) (*models.OfferResult, error)
	CredentialByTransaction(ctx context.Context, transactionID string) (*models.NonceView, error)
	CredentialByNonce(ctx context.Context, nonce string) (*models.NonceView, error)
	GetCredential(ctx context.Context, credentialID string) (*models.CredentialOffer, error)
	Transition(ctx context.Context, credentialID string, req models.ActionRequest) (*models.TransitionResult, error)
	RevokeCredential(ctx context.Context, credentialID string) (*models.CredentialOffer, error)
	DeleteCredential(ctx context.Context, credentialID string) error
	ListHolderCredentials(ctx context.Context, holderDID string) ([]*models.CredentialOffer, error)
	ForgetHolder(ctx context.Context, holderDID string) (models.ForgetSummary, error)
	OpenSession(ctx context.Context, req models.SessionRequest) (*models.SessionResult, error)
	SubmitPresentation(ctx context.Context, req models.PresentationRequest) (*models.VerificationOutcome, error)
	PollSession(ctx context.Context, sessionID string) (*models.SessionStatus, error)
	PurgeSession(ctx context.Context, sessionID string) (models.SweepResult, error)
	GetResult(ctx context.Context, sessionID, presentationID string) (*models.VerificationResult, error)
	ListActiveSessions(ctx context.Context, verifierID string) ([]*models.VerificationSession, error)
	Reset(ctx context.Context) (time.Time, error)
}

// Handler serves the issuer, wallet and verifier APIs.
type Handler struct {
	svc    Service
	tokens auth.Tokens
	logger *slog.Logger
}

func New(svc Service, tokens auth.Tokens, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the routes on r. Callers choose the prefix (the server
// mounts them under /v2).
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAudience(h.tokens, h.logger, auth.AudienceIssuer))
		r.Post("/api/qrcode/data", h.handleOfferWithData)
		r.Post("/api/qrcode/nodata", h.handleOfferWithoutData)
		r.Get("/api/credentials/{credentialID}", h.handleGetCredential)
		r.Post("/api/credentials/{credentialID}/revoke", h.handleRevoke)
		r.Delete("/api/credentials/{credentialID}", h.handleDelete)
		r.Post("/api/system/reset", h.handleReset)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAudience(h.tokens, h.logger, auth.AudienceWallet))
		r.Get("/api/credential/nonce", h.handleNonceByTransaction)
		r.Get("/api/credential/nonce/{nonce}", h.handleNonce)
		r.Put("/api/credential/{credentialID}/action", h.handleAction)
		r.Get("/api/wallet/{holderDID}/credentials", h.handleListHolderCredentials)
		r.Delete("/api/wallet/{holderDID}/forget", h.handleForget)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAudience(h.tokens, h.logger, auth.AudienceVerifier))
		r.Get("/api/did/vp/code", h.handleOpenSession)
		r.Get("/api/did/vp/sessions", h.handleListSessions)
		r.Get("/api/did/vp/session/{sessionID}", h.handlePollSession)
		r.Delete("/api/did/vp/session/{sessionID}", h.handlePurgeSession)
		r.Get("/api/did/vp/result/{sessionID}/{presentationID}", h.handleGetResult)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAudience(h.tokens, h.logger, auth.AudienceVerifier, auth.AudienceWallet))
		r.Post("/api/did/vp/result", h.handleSubmitPresentation)
	})
}

func (h *Handler) handleOfferWithData(w http.ResponseWriter, r *http.Request) {
	h.offer(w, r, models.ModeWithData)
}

func (h *Handler) handleOfferWithoutData(w http.ResponseWriter, r *http.Request) {
	h.offer(w, r, models.ModeWithoutData)
}

func (h *Handler) offer(w http.ResponseWriter, r *http.Request, mode models.IssuanceMode) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[offerRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.svc.Offer(ctx, req.toModel(mode))
	if err != nil {
		h.fail(ctx, w, "offer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleNonceByTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.svc.CredentialByTransaction(ctx, r.URL.Query().Get("transactionId"))
	if err != nil {
		h.fail(ctx, w, "nonce by transaction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleNonce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.svc.CredentialByNonce(ctx, chi.URLParam(r, "nonce"))
	if err != nil {
		h.fail(ctx, w, "nonce lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.svc.GetCredential(ctx, chi.URLParam(r, "credentialID"))
	if err != nil {
		h.fail(ctx, w, "get credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[models.ActionRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.svc.Transition(ctx, chi.URLParam(r, "credentialID"), *req)
	if err != nil {
		h.fail(ctx, w, "credential action", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.svc.RevokeCredential(ctx, chi.URLParam(r, "credentialID"))
	if err != nil {
		h.fail(ctx, w, "revoke", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "credentialID")
	if err := h.svc.DeleteCredential(ctx, id); err != nil {
		h.fail(ctx, w, "delete credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deleteResponse{CredentialID: id, Deleted: true})
}

func (h *Handler) handleListHolderCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := chi.URLParam(r, "holderDID")
	creds, err := h.svc.ListHolderCredentials(ctx, holder)
	if err != nil {
		h.fail(ctx, w, "list holder credentials", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, holderCredentialsResponse{HolderDID: holder, Credentials: creds})
}

func (h *Handler) handleForget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.svc.ForgetHolder(ctx, chi.URLParam(r, "holderDID"))
	if err != nil {
		h.fail(ctx, w, "forget holder", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := sessionRequestFromQuery(r.URL.Query())
	if err != nil {
		h.fail(ctx, w, "open session", err)
		return
	}
	res, err := h.svc.OpenSession(ctx, req)
	if err != nil {
		h.fail(ctx, w, "open session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSubmitPresentation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[presentationRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.svc.SubmitPresentation(ctx, req.PresentationRequest)
	if err != nil {
		h.fail(ctx, w, "submit presentation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePollSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.svc.PollSession(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(ctx, w, "poll session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePurgeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "sessionID")
	res, err := h.svc.PurgeSession(ctx, id)
	if err != nil {
		h.fail(ctx, w, "purge session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purgeResponse{SessionID: id, Purged: res})
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.svc.GetResult(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "presentationID"))
	if err != nil {
		h.fail(ctx, w, "get result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := h.svc.ListActiveSessions(ctx, r.URL.Query().Get("verifier_id"))
	if err != nil {
		h.fail(ctx, w, "list sessions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := h.svc.Reset(ctx)
	if err != nil {
		h.fail(ctx, w, "reset", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resetResponse{Timestamp: at})
}

// fail logs at a level matching the failure and writes the error response.
// Client errors are warnings; anything without a client-facing code is an error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err))
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

// splitFields accepts comma-separated values and repeated parameters.
func splitFields(values []string) []string {
	var out []string
	for _, v := range values {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}
