// Command lsp-echo-server is a minimal embedder of the golsp framework:
// it speaks LSP over stdio, answers initialize with a capability set
// advertising hover support, and answers every hover request with a
// fixed message. It exists to exercise lspserver.Server end to end, not
// as a CLI tool in its own right — wiring, not an application surface.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/firi/golsp/dispatch"
	"github.com/firi/golsp/internal/obslog"
	"github.com/firi/golsp/lspcatalog"
	"github.com/firi/golsp/lspserver"
	"github.com/firi/golsp/rpcclient"
	"github.com/firi/golsp/wire"
)

// maxLogFileSize bounds -log-file before it self-truncates, keeping the
// most recent tenth of the file.
const maxLogFileSize = 10 * 1024 * 1024

func newCatalog() *dispatch.Catalog {
	return dispatch.NewCatalog(
		dispatch.MethodSpec{Name: wire.MethodInitialize, Kind: dispatch.KindRequest, Required: true},
		dispatch.MethodSpec{Name: wire.MethodInitialized, Kind: dispatch.KindNotification, Required: false},
		dispatch.MethodSpec{Name: wire.MethodShutdown, Kind: dispatch.KindRequest, Required: true},
		dispatch.MethodSpec{Name: wire.MethodExit, Kind: dispatch.KindNotification, Required: true},
		dispatch.MethodSpec{Name: wire.MethodCancelRequest, Kind: dispatch.KindNotification, Required: false},
		dispatch.MethodSpec{Name: "textDocument/hover", Kind: dispatch.KindRequest, Required: false},
	)
}

func newHandlers() *dispatch.Handlers {
	h := dispatch.NewHandlers()

	dispatch.TypedRequest(h, wire.MethodInitialize, func(ctx context.Context, c *rpcclient.Client, p lspcatalog.InitializeParams) (lspcatalog.InitializeResult, error) {
		return lspcatalog.InitializeResult{
			Capabilities: lspcatalog.ServerCapabilities{HoverProvider: true},
		}, nil
	})

	dispatch.TypedRequest(h, "textDocument/hover", func(ctx context.Context, c *rpcclient.Client, p lspcatalog.HoverParams) (lspcatalog.Hover, error) {
		return lspcatalog.Hover{
			Contents: lspcatalog.MarkupContent{
				Kind:  "plaintext",
				Value: "lsp-echo-server says hello",
			},
		}, nil
	})

	return h
}

func main() {
	logFile := flag.String("log-file", "", "path to write structured logs to (rotating); defaults to stderr")
	flag.Parse()

	var w io.Writer = os.Stderr
	if *logFile != "" {
		rf, err := obslog.NewRotatingFile(*logFile, maxLogFileSize)
		if err != nil {
			panic(err)
		}
		defer rf.Close()
		w = rf
	}
	logger := obslog.New(w, obslog.LevelInfo)
	defer logger.Sync()

	server := lspserver.New(newCatalog(), newHandlers(), lspserver.WithLogger(logger))

	exitCode, err := server.Serve(context.Background(), stdioReadWriter{})
	if err != nil {
		logger.Error("session ended with error", zap.Error(err))
	}
	os.Exit(exitCode)
}

// stdioReadWriter adapts os.Stdin/os.Stdout to the single io.ReadWriter
// Serve expects, matching how the teacher's ClangdClient piped clangd's
// own stdin/stdout.
type stdioReadWriter struct{}

func (stdioReadWriter) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
