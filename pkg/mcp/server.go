// Package mcp exposes the stylist to MCP clients over stdio (JSON-RPC 2.0,
// one message per line).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/recommend"
)

// Recommender produces recommendations and budget snapshots.
type Recommender interface {
	Suggest(ctx context.Context, req recommend.Request) (*models.OutfitRecommendation, error)
	Usage(ctx context.Context) (models.UsageStats, error)
}

// History lists past budget periods. budget.Ledger implements it.
type History interface {
	History(ctx context.Context, limit int) ([]models.LedgerEntry, error)
}

// Summarizer aggregates metered calls. tracker.Tracker implements it.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
}

// SavedLister lists saved outfits.
type SavedLister interface {
	List(ctx context.Context) ([]models.SavedOutfit, error)
}

// Deps are the components tools call into. Nil fields disable their tools.
type Deps struct {
	Recommender Recommender
	History     History
	Usage       Summarizer
	Saved       SavedLister
}

// Server is a minimal MCP server.
type Server struct {
	deps    Deps
	version string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Server.
func New(deps Deps, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		deps:    deps,
		version: version,
		logger:  logger.With("component", "mcp"),
		now:     time.Now,
	}
}

// Run reads requests from r and writes responses to w until r is closed
// or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, failure(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "stylist", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return failure(req.ID, CodeInvalidParams, "invalid params")
		}
		return result(req.ID, s.call(ctx, params))
	}
	if len(req.ID) == 0 {
		return nil
	}
	return failure(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
