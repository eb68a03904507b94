package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/dedeleono/Senda-Dapp-sub000/internal/config"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/custody"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/engine"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/identity"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/keyvault"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/ledger"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/notify"
	"github.com/dedeleono/Senda-Dapp-sub000/internal/store"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/authn"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/db"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/domain"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/httpx"
	"github.com/dedeleono/Senda-Dapp-sub000/pkg/ledgeraddr"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("schema", "err", err)
		os.Exit(1)
	}

	// Load already validated these.
	feePayer, _ := cfg.FeePayer()
	sealingKey, _ := cfg.SealingKey()
	mints, _ := cfg.Mints()

	gateway := ledger.NewHTTPClient(cfg.LedgerGatewayURL)
	vault := keyvault.New(st, sealingKey)

	var notifier notify.Dispatcher = notify.Noop{}
	if cfg.NotifierURL != "" {
		notifier = notify.NewHTTPDispatcher(cfg.NotifierURL, []byte(cfg.NotifierSecret))
	}
	claims := notify.NewClaimIssuer([]byte(cfg.ClaimTokenSecret), cfg.ClaimBaseURL)

	eng := &engine.Engine{
		Store:         st,
		Ledger:        gateway,
		Keys:          vault,
		Provision:     custody.NewProvisioner(gateway, feePayer),
		Identity:      identity.NewResolver(st, vault),
		Notifier:      notifier,
		Claims:        claims,
		FeePayer:      feePayer,
		Mints:         mints,
		ConfirmWindow: cfg.ConfirmWindow,
		Log:           log,
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/escrow", func(api chi.Router) {
		if cfg.RequireAuth {
			api.Use(requireBearer(pool))
		}

		api.Post("/init", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				SenderWallet   string `json:"sender_wallet"`
				ReceiverWallet string `json:"receiver_wallet"`
			}
			if err := httpx.ReadJSON(w, r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error())
				return
			}
			res, err := eng.EnsureEscrow(r.Context(), engine.EnsureEscrowRequest{
				SenderWallet:   req.SenderWallet,
				ReceiverWallet: req.ReceiverWallet,
			})
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			status := 200
			if res.Initialized {
				status = 201
			}
			httpx.WriteJSON(w, status, map[string]any{
				"request_id":     httpx.NewRequestID(),
				"escrow_address": res.EscrowAddress,
				"initialized":    res.Initialized,
			})
		})

		api.Post("/deposits", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				DepositorWallet string `json:"depositor_wallet"`
				RecipientEmail  string `json:"recipient_email"`
				Asset           string `json:"asset"`
				Policy          string `json:"policy"`
				Amount          string `json:"amount"`
				IdempotencyKey  string `json:"idempotency_key"`
			}
			if err := httpx.ReadJSON(w, r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error())
				return
			}
			asset, err := domain.ParseAsset(req.Asset)
			if err != nil {
				httpx.WriteError(w, 400, "UNSUPPORTED_ASSET", err.Error())
				return
			}
			policy, err := domain.ParsePolicy(req.Policy)
			if err != nil {
				httpx.WriteError(w, 400, "INVALID_POLICY", err.Error())
				return
			}
			amount, err := decimal.NewFromString(req.Amount)
			if err != nil || !amount.IsPositive() {
				httpx.WriteError(w, 400, "INVALID_AMOUNT", "amount must be a positive decimal string")
				return
			}
			if req.IdempotencyKey == "" {
				req.IdempotencyKey = r.Header.Get("Idempotency-Key")
			}
			res, err := eng.CreateDeposit(r.Context(), engine.CreateDepositRequest{
				DepositorWallet: req.DepositorWallet,
				RecipientEmail:  req.RecipientEmail,
				Asset:           asset,
				Policy:          policy,
				Amount:          amount,
				IdempotencyKey:  req.IdempotencyKey,
			})
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{
				"request_id":     httpx.NewRequestID(),
				"deposit_id":     res.DepositID,
				"escrow_address": res.EscrowAddress,
				"deposit_index":  res.DepositIndex,
			})
		})

		api.Post("/deposits/{deposit_id}/approvals", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Role           string `json:"role"`
				ApproverWallet string `json:"approver_wallet"`
			}
			if err := httpx.ReadJSON(w, r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error())
				return
			}
			role, err := domain.ParseRole(req.Role)
			if err != nil {
				httpx.WriteError(w, 400, "INVALID_ROLE", err.Error())
				return
			}
			res, err := eng.RecordApprovalAndMaybeRelease(r.Context(), engine.ApprovalRequest{
				DepositID:      chi.URLParam(r, "deposit_id"),
				Role:           role,
				ApproverWallet: req.ApproverWallet,
			})
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			body := map[string]any{
				"request_id": httpx.NewRequestID(),
				"executed":   res.Executed,
				"message":    res.Message,
			}
			if res.SettlementSignature != "" {
				body["settlement_signature"] = res.SettlementSignature
			}
			httpx.WriteJSON(w, 200, body)
		})

		api.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				EscrowAddress      string `json:"escrow_address"`
				DepositorWallet    string `json:"depositor_wallet"`
				CounterpartyWallet string `json:"counterparty_wallet"`
				DepositIndex       int64  `json:"deposit_index"`
			}
			if err := httpx.ReadJSON(w, r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error())
				return
			}
			res, err := eng.Cancel(r.Context(), engine.CancelRequest{
				EscrowAddress:      req.EscrowAddress,
				DepositorWallet:    req.DepositorWallet,
				CounterpartyWallet: req.CounterpartyWallet,
				DepositIndex:       req.DepositIndex,
			})
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":           httpx.NewRequestID(),
				"settlement_signature": res.SettlementSignature,
			})
		})

		api.Get("/{escrow_address}/deposits", func(w http.ResponseWriter, r *http.Request) {
			deposits, err := eng.ListDeposits(r.Context(), chi.URLParam(r, "escrow_address"))
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"deposits":   deposits,
			})
		})

		api.Get("/{escrow_address}/totals", func(w http.ResponseWriter, r *http.Request) {
			totals, err := st.ReleasedTotals(r.Context(), chi.URLParam(r, "escrow_address"))
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			out := map[string]string{}
			for asset, total := range totals {
				out[string(asset)] = total.String()
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"totals":     out,
			})
		})

		api.Post("/{escrow_address}/close", func(w http.ResponseWriter, r *http.Request) {
			if err := eng.CloseEscrow(r.Context(), chi.URLParam(r, "escrow_address")); err != nil {
				writeEngineError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"state":      domain.EscrowClosed,
			})
		})

		api.Post("/claims/verify", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Token string `json:"token"`
			}
			if err := httpx.ReadJSON(w, r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error())
				return
			}
			depositID, email, err := claims.VerifyClaim(req.Token)
			if err != nil {
				httpx.WriteError(w, 401, "INVALID_CLAIM", "claim token is invalid or expired")
				return
			}
			rec, err := st.GetDeposit(r.Context(), depositID)
			if err != nil {
				writeEngineError(w, log, err)
				return
			}
			if rec == nil {
				httpx.WriteError(w, 404, "NOT_FOUND", "deposit not found")
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id":      httpx.NewRequestID(),
				"deposit":         rec,
				"recipient_email": email,
			})
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("escrowd listening", "port", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

func requireBearer(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := authn.AuthenticateBearer(r.Context(), pool, r.Header.Get("Authorization")); err != nil {
				if errors.Is(err, authn.ErrUnauthorized) {
					httpx.WriteError(w, 401, "UNAUTHORIZED", "missing or invalid bearer token")
					return
				}
				httpx.WriteError(w, 500, "INTERNAL", "internal error")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Unrecognized errors are internal and logged, never echoed.
func writeEngineError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, ledgeraddr.ErrInvalidAddressInput):
		httpx.WriteError(w, 400, "INVALID_ADDRESS", err.Error())
	case errors.Is(err, domain.ErrInvalidPolicy), errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrUnsupportedAsset), errors.Is(err, identity.ErrInvalidEmail):
		httpx.WriteError(w, 400, "BAD_REQUEST", err.Error())
	case errors.Is(err, engine.ErrDepositNotFound), errors.Is(err, engine.ErrEscrowNotFound),
		errors.Is(err, engine.ErrUnknownParty):
		httpx.WriteError(w, 404, "NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrWrongApprover):
		httpx.WriteError(w, 403, "FORBIDDEN", err.Error())
	case errors.Is(err, engine.ErrRoleNotRequired):
		httpx.WriteError(w, 422, "ROLE_NOT_REQUIRED", err.Error())
	case errors.Is(err, engine.ErrDepositNotPending), errors.Is(err, engine.ErrCancelNotAllowed),
		errors.Is(err, engine.ErrEscrowNotSettled):
		httpx.WriteError(w, 409, "CONFLICT", err.Error())
	case errors.Is(err, engine.ErrReleaseFailed), errors.Is(err, custody.ErrCustodyProvisioningFailed),
		errors.Is(err, ledger.ErrNotConfirmed):
		httpx.WriteError(w, 502, "UPSTREAM_LEDGER", err.Error())
	default:
		log.Error("internal error", "err", err)
		httpx.WriteError(w, 500, "INTERNAL", "internal error")
	}
}
