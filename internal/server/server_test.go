package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/export"
	"github.com/joseph-ayodele/fieldcapture/internal/repository"
	"github.com/joseph-ayodele/fieldcapture/internal/store"
)

func seededRepo(t *testing.T) (*repository.SessionRepository, string) {
	t.Helper()
	repo, err := repository.NewSessionRepository(store.NewMemoryStore(), store.LocalFileStore{}, filepath.Join(t.TempDir(), "images"), nil)
	require.NoError(t, err)
	id, err := repo.Commit(context.Background(), entity.Snapshot{
		DetectedEntries: []entity.Candidate{{RawText: "XQ-4471", Kind: "TEXT", Selected: true}},
		AcceptedValues:  []entity.AcceptedValue{{Text: "XQ-4471"}},
	}, "")
	require.NoError(t, err)
	return repo, id
}

func dialBufconn(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func idRequest(t *testing.T, id string) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{"id": id})
	require.NoError(t, err)
	return s
}

func TestSessionsGRPC(t *testing.T) {
	repo, id := seededRepo(t)
	grpcServer, _ := NewGRPCServer(NewSessionsServer(repo, nil))
	conn := dialBufconn(t, grpcServer)
	client := NewSessionsClient(conn)
	ctx := context.Background()

	list, err := client.ListSessions(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)
	assert.Equal(t, id, list.GetValues()[0].GetStructValue().GetFields()["id"].GetStringValue())

	got, err := client.GetSession(ctx, idRequest(t, id))
	require.NoError(t, err)
	accepted := got.GetFields()["accepted_values"].GetListValue().GetValues()
	require.Len(t, accepted, 1)
	assert.Equal(t, "XQ-4471", accepted[0].GetStructValue().GetFields()["text"].GetStringValue())

	_, err = client.GetSession(ctx, idRequest(t, "not-a-uuid"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetSession(ctx, idRequest(t, "6f1c7f7e-8a50-4c1b-9d7e-000000000000"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.DeleteSession(ctx, idRequest(t, id))
	require.NoError(t, err)
	_, err = client.DeleteSession(ctx, idRequest(t, id))
	require.NoError(t, err, "delete is idempotent")

	list, err = client.ListSessions(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Empty(t, list.GetValues())

	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: SessionsServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, health.GetStatus())
}

func TestSessionsHTTP(t *testing.T) {
	repo, id := seededRepo(t)
	exp := export.NewService(repo, t.TempDir(), nil)
	h := NewHTTPHandler(repo, exp, func(context.Context) error { return nil }, nil)

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []entity.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	rec = do(http.MethodGet, "/sessions/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	var one entity.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, []string{"XQ-4471"}, one.AcceptedTexts())

	rec = do(http.MethodGet, "/sessions/"+id+"/export.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "bad id", method: http.MethodGet, path: "/sessions/nope", want: http.StatusBadRequest},
		{name: "unknown id", method: http.MethodGet, path: "/sessions/6f1c7f7e-8a50-4c1b-9d7e-000000000000", want: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/sessions/" + id, want: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: "/sessions/" + id, want: http.StatusNoContent},
		{name: "gone", method: http.MethodGet, path: "/sessions/" + id, want: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPost, path: "/sessions", want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(tt.method, tt.path).Code)
		})
	}
}

func TestHealthzUnavailable(t *testing.T) {
	repo, _ := seededRepo(t)
	h := NewHTTPHandler(repo, nil, func(context.Context) error { return errors.New("db down") }, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPFailureLogCarriesIDs(t *testing.T) {
	repo, _ := seededRepo(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := NewHTTPHandler(repo, nil, nil, logger)

	const missing = "6f1c7f7e-8a50-4c1b-9d7e-000000000001"
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+missing, nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, missing, entry["session_id"])
}
