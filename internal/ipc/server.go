// Package ipc exposes daemon control via JSON-RPC over a Unix domain socket.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"timelens/internal/daemon"
	"timelens/internal/logging"
	"timelens/internal/store"
)

// serviceName is the RPC namespace clients call into.
const serviceName = "Timelens"

// Server accepts RPC connections on the daemon control socket.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the control socket and registers the daemon service.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires a daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithComponent(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      rpcServer,
		ctx:      serverCtx,
		cancel:   cancel,
	}, nil
}

// Serve accepts connections until the context is cancelled.
func (s *Server) Serve() {
	s.logger.Debug("control socket listening", logging.String(logging.FieldPath, s.path))
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
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpc.ServeCodec(jsonrpc.NewServerCodec(c))
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
		s.logger.Warn("remove socket", logging.String(logging.FieldPath, s.path), logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.Capture = string(status.Capture)
	resp.CaptureError = status.CaptureError
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.PID = status.PID
	resp.Stats = map[string]int{
		"segments_pending":    status.Stats.SegmentsPending,
		"segments_processing": status.Stats.SegmentsProcessing,
		"segments_completed":  status.Stats.SegmentsCompleted,
		"segments_failed":     status.Stats.SegmentsFailed,
		"batches_processing":  status.Stats.BatchesProcessing,
		"batches_completed":   status.Stats.BatchesCompleted,
		"batches_failed":      status.Stats.BatchesFailed,
		"cards":               status.Stats.Cards,
	}
	return nil
}

func (s *service) recordResponse(resp *RecordResponse, err error) error {
	resp.State = string(s.daemon.Status(s.ctx).Capture)
	if err != nil {
		resp.Message = err.Error()
	}
	return nil
}

func (s *service) RecordStart(_ RecordRequest, resp *RecordResponse) error {
	s.logger.Debug("record start requested")
	return s.recordResponse(resp, s.daemon.StartRecording())
}

func (s *service) RecordPause(_ RecordRequest, resp *RecordResponse) error {
	s.logger.Debug("record pause requested")
	return s.recordResponse(resp, s.daemon.PauseRecording())
}

func (s *service) RecordResume(_ RecordRequest, resp *RecordResponse) error {
	s.logger.Debug("record resume requested")
	return s.recordResponse(resp, s.daemon.ResumeRecording())
}

func (s *service) RecordStop(_ RecordRequest, resp *RecordResponse) error {
	s.logger.Debug("record stop requested")
	return s.recordResponse(resp, s.daemon.StopRecording())
}

func (s *service) Timeline(req TimelineRequest, resp *TimelineResponse) error {
	cards, err := s.daemon.Timeline(s.ctx, req.From, req.To)
	if err != nil {
		return err
	}
	resp.Cards = make([]TimelineCard, 0, len(cards))
	for _, card := range cards {
		if card == nil {
			continue
		}
		resp.Cards = append(resp.Cards, convertCard(card))
	}
	return nil
}

func (s *service) Batches(req BatchListRequest, resp *BatchListResponse) error {
	statuses := make([]store.BatchStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		status, err := store.ParseBatchStatus(raw)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}
	batches, err := s.daemon.ListBatches(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Batches = make([]Batch, 0, len(batches))
	for _, batch := range batches {
		if batch == nil {
			continue
		}
		resp.Batches = append(resp.Batches, Batch{
			ID:           batch.ID,
			SpanStart:    batch.SpanStart,
			SpanEnd:      batch.SpanEnd,
			Status:       string(batch.Status),
			ErrorMessage: batch.ErrorMessage,
			CreatedAt:    batch.CreatedAt,
			CompletedAt:  batch.CompletedAt,
		})
	}
	return nil
}

func (s *service) Stats(_ StatsRequest, resp *StatsResponse) error {
	stats, err := s.daemon.Stats(s.ctx)
	if err != nil {
		return err
	}
	resp.SegmentsPending = stats.SegmentsPending
	resp.SegmentsProcessing = stats.SegmentsProcessing
	resp.SegmentsCompleted = stats.SegmentsCompleted
	resp.SegmentsFailed = stats.SegmentsFailed
	resp.BatchesProcessing = stats.BatchesProcessing
	resp.BatchesCompleted = stats.BatchesCompleted
	resp.BatchesFailed = stats.BatchesFailed
	resp.Cards = stats.Cards
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TablesPresent = append(resp.TablesPresent, health.TablesPresent...)
	resp.MissingTables = append(resp.MissingTables, health.MissingTables...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalSegments = health.TotalSegments
	resp.TotalCards = health.TotalCards
	resp.Error = health.Error
	return err
}

func (s *service) DigestTest(req DigestTestRequest, resp *DigestTestResponse) error {
	s.logger.Debug("digest test requested", logging.String(logging.FieldPeriod, req.Period))
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	if err := s.daemon.TestDigest(ctx, req.Period); err != nil {
		resp.Sent = false
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "digest sent"
	return nil
}

func convertCard(card *store.TimelineCard) TimelineCard {
	out := TimelineCard{
		ID:                card.ID,
		BatchID:           card.BatchID,
		Category:          card.Category,
		Title:             card.Title,
		Summary:           card.Summary,
		StartTime:         card.StartTime,
		EndTime:           card.EndTime,
		ProductivityScore: card.ProductivityScore,
	}
	for _, site := range card.AppSites {
		out.AppSites = append(out.AppSites, AppSite{Name: site.Name, Seconds: site.Seconds})
	}
	for _, distraction := range card.Distractions {
		out.Distractions = append(out.Distractions, Distraction{Title: distraction.Title, Seconds: distraction.Seconds})
	}
	return out
}
