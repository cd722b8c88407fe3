package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stdhttp "net/http"
	"strconv"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/auth"
	"xinyuan_tech/clinic-billing-service/internal/conf"
	bizerrors "xinyuan_tech/clinic-billing-service/internal/errors"
	"xinyuan_tech/clinic-billing-service/internal/service"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Bootstrap, webhook *service.WebhookService, billing *service.BillingService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
		http.ErrorEncoder(customErrorEncoder),
	}
	if c.Server.Http.Addr != "" {
		opts = append(opts, http.Address(c.Server.Http.Addr))
	}
	if c.Server.Http.Timeout != "" {
		if d, err := time.ParseDuration(c.Server.Http.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}
	srv := http.NewServer(opts...)

	// The webhook endpoint is registered as a raw handler: signature
	// verification needs the body bytes exactly as the provider sent them.
	srv.HandleFunc("/v1/webhooks/stripe", webhook.HandleStripeWebhook)

	registerBillingRoutes(srv, billing, c.Server.AdminToken)

	srv.Route("/").GET("/health", func(ctx http.Context) error {
		return ctx.Result(200, map[string]string{
			"status":  "ok",
			"service": "clinic-billing-service",
		})
	})

	return srv
}

func registerBillingRoutes(srv *http.Server, billing *service.BillingService, adminToken string) {
	api := srv.Route("/v1")

	api.GET("/subscriptions/{user_id}", func(ctx http.Context) error {
		reply, err := billing.GetSubscription(callerContext(ctx, adminToken), ctx.Vars().Get("user_id"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	api.GET("/webhook-logs", func(ctx http.Context) error {
		query := ctx.Query()
		page, _ := strconv.Atoi(query.Get("page"))
		pageSize, _ := strconv.Atoi(query.Get("page_size"))
		reply, err := billing.ListWebhookLogs(callerContext(ctx, adminToken), query.Get("status"), page, pageSize)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	api.POST("/webhook-logs/{event_id}/replay", func(ctx http.Context) error {
		reply, err := billing.ReplayWebhookEvent(callerContext(ctx, adminToken), ctx.Vars().Get("event_id"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})
}

// callerContext stamps the caller role resolved from the admin token
// header. An empty configured token leaves the API open, for deployments
// where the service is only reachable on a trusted network.
func callerContext(ctx http.Context, adminToken string) context.Context {
	base := ctx.Request().Context()
	if adminToken == "" {
		return auth.WithRole(base, auth.RoleAdmin)
	}
	presented := ctx.Header().Get("X-Admin-Token")
	if presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(adminToken)) == 1 {
		return auth.WithRole(base, auth.RoleAdmin)
	}
	return auth.WithRole(base, auth.RoleAnonymous)
}

func customErrorEncoder(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	se := kerrors.FromError(err)
	status := stdhttp.StatusInternalServerError
	response := map[string]interface{}{
		"code":    status,
		"message": "internal server error",
	}

	if se != nil {
		status = mapErrorStatus(int(se.Code))
		response["code"] = se.Code
		response["reason"] = se.Reason
		response["message"] = se.Message
		if len(se.Metadata) > 0 {
			response["metadata"] = se.Metadata
		}
	} else if err != nil {
		response["message"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func mapErrorStatus(code int) int {
	if code >= 100 && code < 600 {
		return code
	}
	switch code {
	case bizerrors.ErrCodeLogNotFound:
		return stdhttp.StatusNotFound
	case bizerrors.ErrCodeMissingSignature, bizerrors.ErrCodeInvalidSignature:
		return stdhttp.StatusBadRequest
	}
	return stdhttp.StatusInternalServerError
}
