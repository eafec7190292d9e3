package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	fulfillmentapi "github.com/BearBump/ShipBox/internal/api/fulfillment_api"
	webhooksapi "github.com/BearBump/ShipBox/internal/api/webhooks_api"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type shipAPIOpts struct {
	grpcAddr     string
	httpAddr     string
	grpcDialAddr string
	swaggerPath  string

	onListen func(grpcAddr, httpAddr string)
}

type shipAPIDeps struct {
	webhooks    *webhooksapi.WebhooksAPI
	fulfillment fulfillmentapi.FulfillmentServer
	gatherer    prometheus.Gatherer
	log         *zap.Logger
}

func runShipAPI(ctx context.Context, opts shipAPIOpts, d shipAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.gatherer == nil {
		d.gatherer = prometheus.DefaultGatherer
	}

	grpcLis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	if opts.onListen != nil {
		opts.onListen(grpcLis.Addr().String(), httpLis.Addr().String())
	}

	dialAddr := opts.grpcDialAddr
	if dialAddr == "" || strings.HasSuffix(dialAddr, ":0") {
		dialAddr = grpcLis.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runGRPCServer(gctx, grpcLis, d.fulfillment, d.log)
	})
	g.Go(func() error {
		return runGatewayServer(gctx, httpLis, dialAddr, opts.swaggerPath, d)
	})
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	return g.Wait()
}

func runGRPCServer(ctx context.Context, lis net.Listener, api fulfillmentapi.FulfillmentServer, log *zap.Logger) error {
	s := grpc.NewServer()
	fulfillmentapi.RegisterFulfillmentServer(s, api)

	go func() {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			s.Stop()
		}
		_ = lis.Close()
	}()

	log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	err := s.Serve(lis)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func newGatewayRouter(grpcAddr, swaggerPath string, d shipAPIDeps) (http.Handler, func(), error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if d.webhooks != nil {
		d.webhooks.Routes(r)
	}

	cc, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	mux := runtime.NewServeMux()
	if err := fulfillmentapi.RegisterGateway(mux, fulfillmentapi.NewClient(cc)); err != nil {
		_ = cc.Close()
		return nil, nil, err
	}
	r.Mount("/", mux)

	return r, func() { _ = cc.Close() }, nil
}

func runGatewayServer(ctx context.Context, lis net.Listener, grpcAddr, swaggerPath string, d shipAPIDeps) error {
	h, closeConn, err := newGatewayRouter(grpcAddr, swaggerPath, d)
	if err != nil {
		_ = lis.Close()
		return err
	}
	defer closeConn()

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	d.log.Info("HTTP gateway listening", zap.String("addr", lis.Addr().String()))
	err = srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
