package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	irma "github.com/privacybydesign/irmarequestor"
	"github.com/privacybydesign/irmarequestor/internal/sessionstore"
	"github.com/privacybydesign/irmarequestor/internal/test"
	"github.com/privacybydesign/irmarequestor/requestor"
)

func setup(t *testing.T) (*test.IrmaServer, *requestor.Client, sessionstore.Store) {
	server := test.StartIrmaServer(t)
	client, err := requestor.New(server.URL)
	require.NoError(t, err)
	store, err := sessionstore.New(&sessionstore.Configuration{Type: sessionstore.TypeMemory})
	require.NoError(t, err)
	t.Cleanup(func() { closeStore(store) })
	return server, client, store
}

func start(t *testing.T, client *requestor.Client, store sessionstore.Store) *sessionstore.Record {
	request, err := constructRequest(requestFlags(t, "--disclose", emailAttr))
	require.NoError(t, err)
	record, err := startSession(context.Background(), client, store, request)
	require.NoError(t, err)
	return record
}

func emailResult() *irma.SessionResult {
	email := "test@example.com"
	return &irma.SessionResult{
		Status:      irma.ServerStatusDone,
		ProofStatus: irma.ProofStatusValid,
		Disclosed: [][]*irma.DisclosedAttribute{{{
			Identifier: irma.NewAttributeTypeIdentifier(emailAttr),
			Status:     irma.AttributeProofStatusPresent,
			RawValue:   &email,
		}}},
	}
}

func TestSessionFlow(t *testing.T) {
	ctx := context.Background()
	server, client, store := setup(t)

	record := start(t, client, store)
	require.Equal(t, irma.RequestorToken("T1"), record.Token)
	require.Equal(t, irma.ActionDisclosing, record.Type)
	require.Equal(t, client.URL(), record.Server)
	require.Equal(t, server.URL+"/irma/session/T1", record.Qr.URL)

	stored, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusInitialized, stored.Status)

	server.SetStatus("T1", irma.ServerStatusConnected)
	require.NoError(t, refresh(ctx, client, store, record))
	require.Equal(t, irma.ServerStatusConnected, record.Status)
	require.Nil(t, record.Result)
	stored, err = store.Get(ctx, "T1")
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusConnected, stored.Status)

	server.Finish("T1", emailResult())
	result, err := awaitResult(ctx, client, store, record, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusDone, result.Status)
	require.Equal(t, "test@example.com", *result.Disclosures(irma.NewAttributeTypeIdentifier(emailAttr))[0].RawValue)

	stored, err = store.Get(ctx, "T1")
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusDone, stored.Status)
	require.Equal(t, result, stored.Result)
}

func TestAwaitCancelled(t *testing.T) {
	ctx := context.Background()
	server, client, store := setup(t)
	record := start(t, client, store)

	server.SetStatus(record.Token, irma.ServerStatusCancelled)
	_, err := awaitResult(ctx, client, store, record, 10*time.Millisecond)
	require.Equal(t, irma.ErrorSessionCancelled, irma.ErrorTypeOf(err))

	stored, err := store.Get(ctx, record.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusCancelled, stored.Status)
	require.Nil(t, stored.Result)
}

func TestAwaitInterrupted(t *testing.T) {
	_, client, store := setup(t)
	record := start(t, client, store)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := awaitResult(ctx, client, store, record, 10*time.Millisecond)
	require.Error(t, err)
	require.Error(t, ctx.Err())

	cancelInterrupted(client, store, record)
	status, err := client.Status(context.Background(), record.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusCancelled, status)
	stored, err := store.Get(context.Background(), record.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusCancelled, stored.Status)
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	_, client, store := setup(t)
	record := start(t, client, store)

	// unknown sessions are ignored
	observe(ctx, store, "T9", irma.ServerStatusDone, nil)

	observe(ctx, store, record.Token, irma.ServerStatusTimeout, nil)
	stored, err := store.Get(ctx, record.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusTimeout, stored.Status)

	// a final status is kept
	observe(ctx, store, record.Token, irma.ServerStatusConnected, nil)
	stored, err = store.Get(ctx, record.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusTimeout, stored.Status)
}

func TestWatcher(t *testing.T) {
	ctx := context.Background()
	server, client, store := setup(t)
	first := start(t, client, store)
	second := start(t, client, store)

	foreign := &sessionstore.Record{
		Token:   "X1",
		Type:    irma.ActionSigning,
		Server:  "https://irma.example.com/",
		Started: time.Now(),
		Status:  irma.ServerStatusInitialized,
	}
	require.NoError(t, store.Add(ctx, foreign))

	w := newWatcher(client, store, 10*time.Millisecond)
	server.Finish(first.Token, emailResult())
	remaining, err := w.poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, remaining)

	stored, err := store.Get(ctx, first.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusDone, stored.Status)
	require.NotNil(t, stored.Result)

	stored, err = store.Get(ctx, foreign.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusInitialized, stored.Status)

	// run returns once the remaining session of this server finishes
	server.SetStatus(second.Token, irma.ServerStatusTimeout)
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, w.run(runCtx))
	require.NoError(t, runCtx.Err())

	stored, err = store.Get(ctx, second.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusTimeout, stored.Status)
}

func TestGocronPanicHandler(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.Out = &buf
	gocronPanicHandler(l)("poll", "boom")
	require.Contains(t, buf.String(), `panic during gocron job 'poll': \"boom\"`)
}

func TestPrintQr(t *testing.T) {
	qr := &irma.Qr{URL: "https://irma.example.com/irma/session/T1", Type: irma.ActionDisclosing}

	var buf bytes.Buffer
	require.NoError(t, printQr(&buf, qr, true))
	printed := &irma.Qr{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), printed))
	require.Equal(t, qr, printed)

	buf.Reset()
	require.NoError(t, printQr(&buf, qr, false))
	require.NotContains(t, buf.String(), "irma.example.com")
	require.Greater(t, strings.Count(buf.String(), "\n"), 10)
}

func TestVerbosity(t *testing.T) {
	require.Equal(t, logrus.InfoLevel, verbosity(0))
	require.Equal(t, logrus.DebugLevel, verbosity(1))
	require.Equal(t, logrus.TraceLevel, verbosity(2))
	require.Equal(t, logrus.TraceLevel, verbosity(5))

	require.Equal(t, logrus.DebugLevel, newLogger(1, false, false).Level)
	_, isJSON := newLogger(0, false, true).Formatter.(*logrus.JSONFormatter)
	require.True(t, isJSON)
}
