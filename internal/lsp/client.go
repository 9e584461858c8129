package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
)

// processStream adapts a subprocess's stdin/stdout pair to the
// io.ReadWriteCloser the JSON-RPC stream wants.
type processStream struct {
	in  io.WriteCloser
	out io.ReadCloser
}

func (s processStream) Read(p []byte) (int, error)  { return s.out.Read(p) }
func (s processStream) Write(p []byte) (int, error) { return s.in.Write(p) }

func (s processStream) Close() error {
	err := s.in.Close()
	if cerr := s.out.Close(); err == nil {
		err = cerr
	}
	return err
}

// Client is one running language server. Queries open the document, ask,
// and close it again, so the server never accumulates state across files.
type Client struct {
	cmd    *exec.Cmd
	conn   *jsonrpc2.Conn
	logger *zap.Logger
	done   chan struct{}

	exitMu  sync.Mutex
	exitErr error
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textDocumentPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type documentSymbolParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type initializeParams struct {
	ProcessID    int            `json:"processId"`
	RootURI      *string        `json:"rootUri"`
	Capabilities map[string]any `json:"capabilities"`
}

type hoverResult struct {
	Contents json.RawMessage `json:"contents"`
}

// StartClient spawns the server, wires the Content-Length framed JSON-RPC
// stream over its stdio, and runs the initialize handshake.
func StartClient(ctx context.Context, cfg ServerConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: empty server command", ErrInitialize)
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrInitialize, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrInitialize, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrInitialize, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialize, err)
	}

	c := &Client{
		cmd:    cmd,
		logger: logger.With(zap.String("server", cfg.Command[0])),
		done:   make(chan struct{}),
	}

	// The stderr pipe must be drained continuously; a full OS pipe buffer
	// blocks the server on write and hangs every pending request.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			c.logger.Debug("language server stderr", zap.String("line", scanner.Text()))
		}
	}()

	go func() {
		err := cmd.Wait()
		c.exitMu.Lock()
		c.exitErr = err
		c.exitMu.Unlock()
		close(c.done)
	}()

	stream := jsonrpc2.NewBufferedStream(processStream{in: stdin, out: stdout}, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(c.handle))

	ictx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	var initResult json.RawMessage
	if err := c.conn.Call(ictx, "initialize", initializeParams{
		ProcessID:    os.Getpid(),
		RootURI:      nil,
		Capabilities: map[string]any{},
	}, &initResult); err != nil {
		_ = c.cmd.Process.Kill()
		<-c.done
		_ = c.conn.Close()
		return nil, fmt.Errorf("%w: initialize: %v", ErrInitialize, err)
	}
	if err := c.conn.Notify(ictx, "initialized", struct{}{}); err != nil {
		_ = c.cmd.Process.Kill()
		<-c.done
		_ = c.conn.Close()
		return nil, fmt.Errorf("%w: initialized: %v", ErrInitialize, err)
	}

	return c, nil
}

// handle receives server-initiated traffic. Notifications are logged and
// discarded; requests get a null result.
func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	c.logger.Debug("language server message",
		zap.String("method", req.Method),
		zap.Bool("notification", req.Notif))
	return nil, nil
}

// IsAlive reports whether the server process is still running.
func (c *Client) IsAlive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// ExitError returns the process exit error once the server has stopped.
func (c *Client) ExitError() error {
	c.exitMu.Lock()
	defer c.exitMu.Unlock()
	return c.exitErr
}

// Hover opens the document, asks for hover text at a zero-based position,
// and closes the document again.
func (c *Client) Hover(ctx context.Context, path, source string, line, character int, languageID string) (string, error) {
	uri := fileURI(path)
	if err := c.didOpen(ctx, uri, languageID, source); err != nil {
		return "", err
	}
	defer c.didClose(uri)

	var res hoverResult
	if err := c.call(ctx, "textDocument/hover", textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     Position{Line: line, Character: character},
	}, &res, hoverTimeout); err != nil {
		return "", err
	}
	return hoverText(res.Contents), nil
}

// DocumentSymbols lists the document's symbols, flattening the legacy
// SymbolInformation form into the hierarchical one.
func (c *Client) DocumentSymbols(ctx context.Context, path, source, languageID string) ([]DocumentSymbol, error) {
	uri := fileURI(path)
	if err := c.didOpen(ctx, uri, languageID, source); err != nil {
		return nil, err
	}
	defer c.didClose(uri)

	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/documentSymbol", documentSymbolParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	}, &raw, symbolsTimeout); err != nil {
		return nil, err
	}
	return decodeSymbols(raw), nil
}

// Definition resolves the definition site for a zero-based position.
// Returns nil when the server has no answer.
func (c *Client) Definition(ctx context.Context, path, source string, line, character int, languageID string) (*Location, error) {
	uri := fileURI(path)
	if err := c.didOpen(ctx, uri, languageID, source); err != nil {
		return nil, err
	}
	defer c.didClose(uri)

	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/definition", textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     Position{Line: line, Character: character},
	}, &raw, definitionTimeout); err != nil {
		return nil, err
	}
	return decodeLocation(raw), nil
}

// Shutdown runs the graceful shutdown/exit sequence, then reaps the
// process, killing it if it ignores the request.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	_ = c.conn.Call(sctx, "shutdown", nil, nil)
	_ = c.conn.Notify(sctx, "exit", nil)

	timer := time.NewTimer(shutdownGrace)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.logger.Warn("language server ignored shutdown, killing")
		_ = c.cmd.Process.Kill()
		<-c.done
	}

	_ = c.conn.Close()
	return nil
}

func (c *Client) call(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	if !c.IsAlive() {
		return ErrServerCrashed
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.conn.Call(cctx, method, params, result); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		return fmt.Errorf("%s: %w: %v", method, ErrCommunication, err)
	}
	return nil
}

func (c *Client) didOpen(ctx context.Context, uri, languageID, text string) error {
	if !c.IsAlive() {
		return ErrServerCrashed
	}
	err := c.conn.Notify(ctx, "textDocument/didOpen", didOpenParams{
		TextDocument: textDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
	})
	if err != nil {
		return fmt.Errorf("textDocument/didOpen: %w: %v", ErrCommunication, err)
	}
	return nil
}

func (c *Client) didClose(uri string) {
	_ = c.conn.Notify(context.Background(), "textDocument/didClose", didCloseParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})
}

func fileURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	if filepath.IsAbs(path) {
		return "file://" + path
	}
	return "file:///" + path
}

// hoverText flattens the three wire shapes of hover contents (plain string,
// MarkupContent, MarkedString list) into text.
func hoverText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var markup struct {
		Value string `json:"value"`
	}
	if json.Unmarshal(raw, &markup) == nil && markup.Value != "" {
		return markup.Value
	}

	var many []json.RawMessage
	if json.Unmarshal(raw, &many) == nil {
		parts := make([]string, 0, len(many))
		for _, m := range many {
			if t := hoverText(m); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func decodeSymbols(raw json.RawMessage) []DocumentSymbol {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err == nil && len(symbols) > 0 {
		// SymbolInformation decodes into the same shape but leaves ranges
		// zero; fall through to the flat form in that case
		if symbols[0].Range.End != (Position{}) || symbols[0].SelectionRange.End != (Position{}) {
			return symbols
		}
	}

	var flat []struct {
		Name     string   `json:"name"`
		Kind     int      `json:"kind"`
		Location Location `json:"location"`
	}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil
	}
	out := make([]DocumentSymbol, 0, len(flat))
	for _, s := range flat {
		out = append(out, DocumentSymbol{
			Name:           s.Name,
			Kind:           s.Kind,
			Range:          s.Location.Range,
			SelectionRange: s.Location.Range,
		})
	}
	return out
}

func decodeLocation(raw json.RawMessage) *Location {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var one Location
	if err := json.Unmarshal(raw, &one); err == nil && one.URI != "" {
		return &one
	}

	var many []Location
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].URI != "" {
		return &many[0]
	}

	var links []struct {
		TargetURI   string `json:"targetUri"`
		TargetRange Range  `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		return &Location{URI: links[0].TargetURI, Range: links[0].TargetRange}
	}
	return nil
}
