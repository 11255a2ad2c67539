package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/squirrel/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes /metrics over HTTP. It satisfies suture.Service.
type MetricsServer struct {
	Addr string

	ready chan net.Addr
}

func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{Addr: addr, ready: make(chan net.Addr, 1)}
}

// Ready yields the bound address once the listener is up.
func (s *MetricsServer) Ready() <-chan net.Addr {
	return s.ready
}

// Router serves /metrics and nothing else.
func (s *MetricsServer) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logging.Logger("observability.metrics")))
	_ = r.SetTrustedProxies(nil)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *MetricsServer) Serve(ctx context.Context) error {
	RegisterMetrics()
	log := logging.Logger("observability.metrics")

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("observability.MetricsServer.Serve listening")
	select {
	case s.ready <- ln.Addr():
	default:
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errc
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *MetricsServer) String() string {
	return "metrics@" + s.Addr
}
