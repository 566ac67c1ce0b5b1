package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MatthiasKunnen/applock/pkg/command"
	applifecycle "github.com/MatthiasKunnen/applock/pkg/lifecycle"
	"golang.org/x/mobile/event/lifecycle"
)

const maxLineSize = 1024 * 1024

var (
	ErrInvalidRequest = &command.Error{Code: "INVALID_REQUEST"}
	ErrUnavailable    = &command.Error{Code: "UNAVAILABLE"}
	ErrInternal       = &command.Error{Code: "INTERNAL"}
)

// Handler runs a command. [command.Dispatcher] implements it.
type Handler interface {
	Handle(method string, args command.Args) (any, error)
}

// Executor runs f on the goroutine that owns the engine and waits for it to finish.
type Executor interface {
	Do(ctx context.Context, f func()) error
}

// StageSetter receives lifecycle changes of the host. [applifecycle.Tracker] implements it.
type StageSetter interface {
	SetStage(stage lifecycle.Stage)
}

type request struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Args      command.Args    `json:"args,omitempty"`
	Lifecycle string          `json:"lifecycle,omitempty"`
}

type resultResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	ID    json.RawMessage `json:"id"`
	Error errorBody       `json:"error"`
}

type notImplementedResponse struct {
	ID             json.RawMessage `json:"id"`
	NotImplemented bool            `json:"notImplemented"`
}

type Server struct {
	r         io.Reader
	w         *Writer
	exec      Executor
	handler   Handler
	lifecycle StageSetter
	logger    *slog.Logger
}

// NewServer reads requests from r and answers on w. stages may be nil, lifecycle messages
// are then rejected.
func NewServer(
	r io.Reader,
	w *Writer,
	exec Executor,
	handler Handler,
	stages StageSetter,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		r:         r,
		w:         w,
		exec:      exec,
		handler:   handler,
		lifecycle: stages,
		logger:    logger.With("component", "channel"),
	}
}

// Serve processes requests until the reader is exhausted, which returns nil, or ctx is done.
// A blocked read is not interrupted by ctx.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if err := s.serveLine(ctx, line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	return nil
}

// serveLine handles one request. Only failures to write are returned.
func (s *Server) serveLine(ctx context.Context, line []byte) error {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("Invalid request", "error", err)
		return s.writeError(nil, ErrInvalidRequest.WithMessagef("%v", err))
	}

	switch {
	case req.Lifecycle != "":
		return s.serveLifecycle(req)
	case req.Method != "":
		return s.serveCommand(ctx, req)
	default:
		return s.writeError(req.ID, ErrInvalidRequest.WithMessagef("either method or lifecycle is required"))
	}
}

func (s *Server) serveLifecycle(req request) error {
	if s.lifecycle == nil {
		return s.respondError(req.ID, ErrInvalidRequest.WithMessagef("lifecycle messages are not supported"))
	}

	stage, err := applifecycle.ParseStage(req.Lifecycle)
	if err != nil {
		return s.respondError(req.ID, ErrInvalidRequest.WithMessagef("%v", err))
	}

	s.lifecycle.SetStage(stage)
	if req.ID == nil {
		return nil
	}
	return s.w.Write(resultResponse{ID: req.ID})
}

func (s *Server) serveCommand(ctx context.Context, req request) error {
	var result any
	var handleErr error
	err := s.exec.Do(ctx, func() {
		result, handleErr = s.handler.Handle(req.Method, req.Args)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return s.respondError(req.ID, ErrUnavailable.WithMessagef("%v", err))
	}

	if handleErr != nil {
		s.logger.Debug("Command failed", "method", req.Method, "error", handleErr)
		return s.respondError(req.ID, handleErr)
	}

	if req.ID == nil {
		return nil
	}
	if _, ok := result.(command.NotImplementedResult); ok {
		return s.w.Write(notImplementedResponse{ID: req.ID, NotImplemented: true})
	}
	return s.w.Write(resultResponse{ID: req.ID, Result: result})
}

// respondError writes err unless the request did not ask for a response.
func (s *Server) respondError(id json.RawMessage, err error) error {
	if id == nil {
		s.logger.Debug("Dropping error of request without id", "error", err)
		return nil
	}
	return s.writeError(id, err)
}

func (s *Server) writeError(id json.RawMessage, err error) error {
	if id == nil {
		id = json.RawMessage("null")
	}

	var cmdErr *command.Error
	if !errors.As(err, &cmdErr) {
		cmdErr = ErrInternal.WithMessagef("%v", err)
	}

	return s.w.Write(errorResponse{
		ID: id,
		Error: errorBody{
			Code:    cmdErr.Code,
			Message: cmdErr.Message,
		},
	})
}
