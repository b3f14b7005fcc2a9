package server

import (
	"context"

	"PolicyLane/internal/conf"
	"PolicyLane/internal/server/middleware"
	"PolicyLane/internal/service"
	pkglog "PolicyLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server exposing the policy engine's admin
// surface.
func NewHTTPServer(c *conf.Server, policy *service.PolicyService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerRoutes(srv, policy)

	return srv
}

// registerRoutes wires the admin endpoints. The surface is small enough
// that hand-routed handlers beat a generated stub.
func registerRoutes(srv *http.Server, policy *service.PolicyService) {
	r := srv.Route("/v1")

	r.GET("/health", func(c http.Context) error {
		h := c.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return policy.GetHealth(ctx), nil
		})
		out, err := h(c, nil)
		if err != nil {
			return err
		}
		return c.Result(200, out)
	})

	r.GET("/circuits", func(c http.Context) error {
		h := c.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return policy.ListCircuits(ctx)
		})
		out, err := h(c, nil)
		if err != nil {
			return err
		}
		return c.Result(200, out)
	})

	r.GET("/circuits/{function}", func(c http.Context) error {
		function := c.Vars().Get("function")
		h := c.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return policy.GetCircuitState(ctx, function)
		})
		out, err := h(c, nil)
		if err != nil {
			return err
		}
		return c.Result(200, out)
	})

	r.POST("/circuits/{function}/reset", func(c http.Context) error {
		function := c.Vars().Get("function")
		operator := c.Query().Get("operator")
		h := c.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return nil, policy.ResetCircuit(ctx, function, operator)
		})
		if _, err := h(c, nil); err != nil {
			return err
		}
		return c.Result(200, map[string]string{"function": function, "state": "closed"})
	})

	r.GET("/configs/{function}", func(c http.Context) error {
		function := c.Vars().Get("function")
		h := c.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return policy.GetConfig(ctx, function)
		})
		out, err := h(c, nil)
		if err != nil {
			return err
		}
		return c.Result(200, out)
	})

	r.POST("/configs/{function}", func(c http.Context) error {
		function := c.Vars().Get("function")
		var req service.OverrideConfigRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		h := c.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return policy.OverrideConfig(ctx, function, &req)
		})
		out, err := h(c, nil)
		if err != nil {
			return err
		}
		return c.Result(200, out)
	})
}
