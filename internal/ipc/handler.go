package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"expanderd/internal/engine"
	"expanderd/internal/keystroke"
)

// Controller is the part of the engine the control socket drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Refresh(ctx context.Context) error
	Stats() engine.Stats
}

// DaemonHandlerConfig configures the daemon handler
type DaemonHandlerConfig struct {
	Version string
	Storage StorageStatus
	Engine  Controller
}

// DaemonHandler maps control requests onto the expansion engine.
type DaemonHandler struct {
	version   string
	storage   StorageStatus
	engine    Controller
	startedAt time.Time
	logger    *slog.Logger
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	return &DaemonHandler{
		version:   cfg.Version,
		storage:   cfg.Storage,
		engine:    cfg.Engine,
		startedAt: time.Now(),
		logger:    slog.Default().With("component", "ipc_handler"),
	}
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error) {
	id := msg.Header.RequestID

	switch msg.Header.Type {
	case MsgStatusRequest:
		return NewResponse(MsgStatusResponse, id, h.status())

	case MsgStart:
		if err := h.engine.Start(ctx); err != nil {
			h.logger.Warn("start requested but failed", "peer", peer.ID, "error", err)
			return NewErrorMessage(id, errorCode(err), err.Error()), nil
		}
		h.logger.Info("engine started over control socket", "peer", peer.ID)
		return NewResponse(MsgStartResp, id, h.action())

	case MsgStop:
		if err := h.engine.Stop(); err != nil {
			return NewErrorMessage(id, errorCode(err), err.Error()), nil
		}
		h.logger.Info("engine stopped over control socket", "peer", peer.ID)
		return NewResponse(MsgStopResp, id, h.action())

	case MsgReload:
		if err := h.engine.Refresh(ctx); err != nil {
			h.logger.Warn("reload failed", "peer", peer.ID, "error", err)
			return NewErrorMessage(id, errorCode(err), fmt.Sprintf("reload: %v", err)), nil
		}
		return NewResponse(MsgReloadResp, id, h.action())

	default:
		return NewErrorMessage(id, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: %s", msg.Header.Type)), nil
	}
}

func (h *DaemonHandler) status() *StatusResponse {
	return &StatusResponse{
		Version:   h.version,
		PID:       os.Getpid(),
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt).Round(time.Second),
		Storage:   h.storage,
		Engine:    h.engine.Stats(),
	}
}

func (h *DaemonHandler) action() *ActionResponse {
	s := h.engine.Stats()
	return &ActionResponse{Running: s.Running, Expansions: s.Expansions}
}

func errorCode(err error) int {
	if errors.Is(err, keystroke.ErrNotAvailable) {
		return ErrNotAvailable
	}
	return ErrInternalError
}
