package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"carousel/internal/logging"
)

// Controller is the surface the daemon exposes over IPC, implemented by
// the orchestrator.
type Controller interface {
	Status() StatusResponse
	Devices() []DeviceInfo
	Pause() bool
	Resume() bool
	StartDownload(deviceID int) (int, error)
	AddPath(path string) (int, error)
	AddCamera(model, port, path string) (int, error)
	SubmitJobCode(code string) (int, error)
	ResolveScanError(deviceID int, retry bool) error
	TestNotification(ctx context.Context) error
	Shutdown()
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, controller Controller, logger *slog.Logger) (*Server, error) {
	if controller == nil {
		return nil, errors.New("ipc server requires a controller")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{controller: controller, ctx: ctx}
	if err := rpcServer.RegisterName("Carousel", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

// service implements the RPC method set.
type service struct {
	controller Controller
	ctx        context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.controller.Status()
	return nil
}

func (s *service) Devices(_ DevicesRequest, resp *DevicesResponse) error {
	resp.Devices = s.controller.Devices()
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	resp.Paused = s.controller.Pause()
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	resp.Resumed = s.controller.Resume()
	return nil
}

func (s *service) StartDownload(req StartDownloadRequest, resp *StartDownloadResponse) error {
	started, err := s.controller.StartDownload(req.DeviceID)
	if err != nil {
		resp.Message = err.Error()
	}
	resp.Started = started
	return nil
}

func (s *service) AddPath(req AddPathRequest, resp *AddDeviceResponse) error {
	id, err := s.controller.AddPath(req.Path)
	if err != nil {
		return err
	}
	resp.DeviceID = id
	return nil
}

func (s *service) AddCamera(req AddCameraRequest, resp *AddDeviceResponse) error {
	id, err := s.controller.AddCamera(req.Model, req.Port, req.Path)
	if err != nil {
		return err
	}
	resp.DeviceID = id
	return nil
}

func (s *service) SubmitJobCode(req JobCodeRequest, resp *JobCodeResponse) error {
	released, err := s.controller.SubmitJobCode(req.Code)
	if err != nil {
		return err
	}
	resp.Released = released
	return nil
}

func (s *service) ResolveScanError(req ScanDecisionRequest, resp *ScanDecisionResponse) error {
	if err := s.controller.ResolveScanError(req.DeviceID, req.Retry); err != nil {
		return err
	}
	resp.Applied = true
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.controller.TestNotification(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "notification sent"
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.controller.Shutdown()
	resp.ShuttingDown = true
	return nil
}
