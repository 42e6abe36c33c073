package testtool

import (
	"errors"
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"chat_room_client/pkg/config"
	"chat_room_client/pkg/logger"

	"go.uber.org/zap"
)

// PprofAddr pprof 監聽位址
const PprofAddr = "localhost:6060"

// StartPprof 非 production 環境啟動 pprof, 回傳 server 供關閉
func StartPprof() *http.Server {
	if config.IsProduction() {
		logger.Log.Info("production environment detected, pprof is disabled")
		return nil
	}

	srv := &http.Server{Addr: PprofAddr, Handler: http.DefaultServeMux}
	go func() {
		logger.Log.Info("starting pprof server", zap.String("addr", PprofAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
	return srv
}

// 排查 listener 洩漏:
// curl http://localhost:6060/debug/pprof/goroutine?debug=1
// 每個仍存活的訂閱會留下一個 docstore feed / snapshot goroutine
