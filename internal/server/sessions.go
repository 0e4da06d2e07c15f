// Package server exposes stored sessions over gRPC and HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/fieldcapture/internal/common"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// SessionStore is the read/delete side of the session repository.
type SessionStore interface {
	List(ctx context.Context) ([]*entity.Session, error)
	Get(ctx context.Context, id string) (*entity.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionsServer implements the fieldcapture.v1.Sessions service.
type SessionsServer struct {
	store  SessionStore
	logger *slog.Logger
}

func NewSessionsServer(store SessionStore, logger *slog.Logger) *SessionsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionsServer{store: store, logger: logger}
}

func (s *SessionsServer) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		return nil, common.ToStatus(err)
	}
	items := make([]any, 0, len(sessions))
	for _, sess := range sessions {
		m, err := sessionMap(sess)
		if err != nil {
			return nil, common.InternalErrorf("encode session %s: %v", sess.ID, err)
		}
		items = append(items, m)
	}
	out, err := structpb.NewList(items)
	if err != nil {
		return nil, common.InternalErrorf("encode sessions: %v", err)
	}
	return out, nil
}

func (s *SessionsServer) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestID(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Warn("get session failed", "session_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	m, err := sessionMap(sess)
	if err != nil {
		return nil, common.InternalErrorf("encode session %s: %v", id, err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode session %s: %v", id, err)
	}
	return out, nil
}

func (s *SessionsServer) DeleteSession(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id, err := requestID(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("delete session failed", "session_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func requestID(req *structpb.Struct) (string, error) {
	id := strings.TrimSpace(req.GetFields()["id"].GetStringValue())
	if err := common.ValidateSessionID(id); err != nil {
		return "", common.InvalidArgumentError(err.Error())
	}
	return id, nil
}

// sessionMap converts a session to the generic map form used by structpb and JSON.
func sessionMap(s *entity.Session) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return m, nil
}
