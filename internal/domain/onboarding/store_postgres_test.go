package onboarding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

const (
	oidBool        = 16
	oidInt4        = 23
	oidText        = 25
	oidUUID        = 2950
	oidJSONB       = 3802
	oidTimestamptz = 1184
)

func TestPostgresDraftStore_Get(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	script := acceptScript(
		expectQuery(getDraftQuery),
		sendRowDescription(draftFieldsRowDesc()...),
		sendDataRow(id.String(), "user-1", "7", `{"gender":"male","fatherCm":180}`, formatTime(now)),
		sendCommandComplete("SELECT 1"),
		sendReady(),
	)
	conn, cleanup := startMockDB(t, script)
	defer cleanup()

	store := NewPostgresDraftStore(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	draft, err := store.Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, draft.ID)
	require.NotNil(t, draft.UserID)
	assert.Equal(t, "user-1", *draft.UserID)
	assert.Equal(t, 7, draft.Step)
	assert.Equal(t, "male", draft.Data["gender"])
	assert.Equal(t, 180.0, draft.Data["fatherCm"])
	assert.True(t, draft.UpdatedAt.Equal(now))
}

func TestPostgresDraftStore_Get_NotFound(t *testing.T) {
	script := acceptScript(
		expectQuery(getDraftQuery),
		sendRowDescription(draftFieldsRowDesc()...),
		sendCommandComplete("SELECT 0"),
		sendReady(),
	)
	conn, cleanup := startMockDB(t, script)
	defer cleanup()

	store := NewPostgresDraftStore(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := store.Get(context.Background(), uuid.New())
	if err == nil || !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresDraftStore_SaveAndDelete(t *testing.T) {
	script := acceptScript(
		expectQuery(saveDraftQuery),
		sendCommandComplete("INSERT 0 1"),
		sendReady(),
		expectQuery(deleteDraftQuery),
		sendCommandComplete("DELETE 1"),
		sendReady(),
	)
	conn, cleanup := startMockDB(t, script)
	defer cleanup()

	store := NewPostgresDraftStore(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	draft := types.NewOnboardingDraft(uuid.New(), time.Now())
	draft.Merge(map[string]any{"gender": "female"})

	require.NoError(t, store.Save(context.Background(), draft))
	require.NoError(t, store.Delete(context.Background(), draft.ID))
}

func TestPostgresDraftStore_PurgeStale(t *testing.T) {
	script := acceptScript(
		expectQuery(purgeDraftsQuery),
		sendCommandComplete("DELETE 3"),
		sendReady(),
	)
	conn, cleanup := startMockDB(t, script)
	defer cleanup()

	store := NewPostgresDraftStore(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := store.PurgeStale(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func acceptScript(steps ...pgmock.Step) *pgmock.Script {
	base := []pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationOk{}),
		pgmock.SendMessage(&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"}),
		pgmock.SendMessage(&pgproto3.ParameterStatus{Name: "standard_conforming_strings", Value: "on"}),
		pgmock.SendMessage(&pgproto3.ParameterStatus{Name: "server_version", Value: "14"}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 0, SecretKey: 0}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}
	s := &pgmock.Script{Steps: append(base, steps...)}
	s.Steps = append(s.Steps, pgmock.WaitForClose())
	return s
}

func expectQuery(q string) pgmock.Step {
	_ = q
	return pgmock.ExpectAnyMessage(&pgproto3.Query{})
}

func sendRowDescription(fields ...pgproto3.FieldDescription) pgmock.Step {
	return pgmock.SendMessage(&pgproto3.RowDescription{Fields: fields})
}

func sendDataRow(values ...string) pgmock.Step {
	row := make([][]byte, len(values))
	for i, v := range values {
		if v == "" {
			row[i] = nil
		} else {
			row[i] = []byte(v)
		}
	}
	return pgmock.SendMessage(&pgproto3.DataRow{Values: row})
}

func sendCommandComplete(tag string) pgmock.Step {
	return pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
}

func sendReady() pgmock.Step {
	return pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'})
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.999999999Z07:00")
}

func field(name string, oid uint32) pgproto3.FieldDescription {
	return pgproto3.FieldDescription{
		Name:        []byte(name),
		DataTypeOID: oid,
		Format:      0,
	}
}

func draftFieldsRowDesc() []pgproto3.FieldDescription {
	return []pgproto3.FieldDescription{
		field("id", oidUUID),
		field("user_id", oidText),
		field("step", oidInt4),
		field("data", oidJSONB),
		field("updated_at", oidTimestamptz),
	}
}

func startMockDB(t *testing.T, script *pgmock.Script) (*pgx.Conn, func()) {
	t.Helper()

	serverErr := make(chan error, 1)
	clientConn, serverConn := net.Pipe()
	go func() {
		defer close(serverErr)
		defer serverConn.Close()
		if err := serverConn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
			serverErr <- err
			return
		}
		backend := pgproto3.NewBackend(pgproto3.NewChunkReader(serverConn), serverConn)
		serverErr <- script.Run(backend)
	}()

	cfg, err := pgx.ParseConfig("user=postgres host=localhost dbname=postgres sslmode=disable")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	cfg.DialFunc = func(_ context.Context, _, _ string) (net.Conn, error) {
		return clientConn, nil
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["standard_conforming_strings"] = "on"

	conn, err := pgx.ConnectConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("ConnectConfig: %v", err)
	}

	cleanup := func() {
		_ = conn.Close(context.Background())
		_ = clientConn.Close()
		if err := <-serverErr; err != nil {
			t.Fatalf("server error: %v", err)
		}
	}

	return conn, cleanup
}
