package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/services"
)

// Controller HTTP 接口需要的控制器能力
type Controller interface {
	StartAnalysis() error
	StartScan() error
	Stop() error
	Status() services.Status
}

// NewHandler 注册路由
func NewHandler(ctrl Controller) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		RspSuccess(w, ctrl.Status())
	}))
	mux.HandleFunc("/api/analyze", method(http.MethodPost, command(ctrl, ctrl.StartAnalysis)))
	mux.HandleFunc("/api/scan", method(http.MethodPost, command(ctrl, ctrl.StartScan)))
	mux.HandleFunc("/api/stop", method(http.MethodPost, command(ctrl, ctrl.Stop)))
	return mux
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logrus.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("收到api请求")
		if r.Method != m {
			w.Header().Set("Allow", m)
			RspError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		h(w, r)
	}
}

func command(ctrl Controller, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, services.ErrBusy) || errors.Is(err, services.ErrNotRunning) {
				status = http.StatusConflict
			}
			RspError(w, status, err)
			return
		}
		RspSuccess(w, ctrl.Status())
	}
}

// Serve 启动http服务直到 ctx 结束
func Serve(ctx context.Context, addr string, ctrl Controller) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(ctrl),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.Info("http服务启动：", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
