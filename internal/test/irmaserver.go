package test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"

	irma "github.com/privacybydesign/irmarequestor"
)

// IrmaServer is an in-process implementation of the requestor API of an IRMA server. Sessions
// started at it stay in the INITIALIZED status until a test moves them along using SetStatus
// or Finish.
type IrmaServer struct {
	URL string

	// If set, session requests must carry this token in their Authorization header
	Token string
	// If set, session requests must be JWTs verifiable with this key
	JwtKey interface{}

	server   *httptest.Server
	mutex    sync.Mutex
	counter  int
	sessions map[irma.RequestorToken]*fakeSession
	requests []*ReceivedRequest
}

// ReceivedRequest is a session request as it was received by the IrmaServer.
type ReceivedRequest struct {
	Header  http.Header
	Body    []byte
	Request *irma.RequestorRequest
	Jwt     *irma.RequestorJwt
}

type fakeSession struct {
	request *irma.RequestorRequest
	result  *irma.SessionResult
}

// StartIrmaServer starts an IrmaServer, which is closed when the test finishes.
func StartIrmaServer(t *testing.T) *IrmaServer {
	s := &IrmaServer{sessions: map[irma.RequestorToken]*fakeSession{}}
	s.server = httptest.NewServer(s.Handler())
	s.URL = s.server.URL
	t.Cleanup(s.server.Close)
	return s
}

// Handler returns the routes of the requestor API.
func (s *IrmaServer) Handler() http.Handler {
	router := chi.NewRouter()
	router.Post("/session", s.handleCreate)
	router.Delete("/session/{token}", s.handleDelete)
	router.Get("/session/{token}/status", s.handleStatus)
	router.Get("/session/{token}/result", s.handleResult)
	return router
}

// Requests returns the session requests received so far.
func (s *IrmaServer) Requests() []*ReceivedRequest {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]*ReceivedRequest(nil), s.requests...)
}

// SetStatus sets the status of the session.
func (s *IrmaServer) SetStatus(token irma.RequestorToken, status irma.ServerStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[token].result.Status = status
}

// Finish replaces the result of the session. Its token and type are set to those of the session.
func (s *IrmaServer) Finish(token irma.RequestorToken, result *irma.SessionResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session := s.sessions[token]
	result.Token = token
	result.Type = session.request.Action()
	session.result = result
}

func (s *IrmaServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	received := &ReceivedRequest{Header: r.Header.Clone(), Body: body}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		received.Jwt, received.Request, err = s.parseJwt(string(body))
	} else {
		if s.Token != "" && r.Header.Get("Authorization") != s.Token {
			writeError(w, http.StatusForbidden, "UNAUTHORIZED", "Request could not be authorized")
			return
		}
		received.Request, err = irma.ParseRequestorRequest(body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	s.mutex.Lock()
	s.counter++
	token := irma.RequestorToken(fmt.Sprintf("T%d", s.counter))
	s.sessions[token] = &fakeSession{
		request: received.Request,
		result: &irma.SessionResult{
			Token:  token,
			Type:   received.Request.Action(),
			Status: irma.ServerStatusInitialized,
		},
	}
	s.requests = append(s.requests, received)
	s.mutex.Unlock()

	writeJson(w, &irma.SessionPackage{
		SessionPtr: &irma.Qr{URL: s.URL + "/irma/session/" + string(token), Type: received.Request.Action()},
		Token:      token,
	})
}

func (s *IrmaServer) parseJwt(str string) (*irma.RequestorJwt, *irma.RequestorRequest, error) {
	if s.JwtKey == nil {
		return nil, nil, fmt.Errorf("JWT authentication not supported")
	}
	claims := &irma.RequestorJwt{}
	_, err := jwt.ParseWithClaims(str, claims, func(token *jwt.Token) (interface{}, error) {
		return s.JwtKey, nil
	})
	if err != nil {
		return nil, nil, err
	}
	request := claims.RequestorRequest()
	if request == nil {
		return nil, nil, fmt.Errorf("JWT contains no session request")
	}
	return claims, request, nil
}

func (s *IrmaServer) session(w http.ResponseWriter, r *http.Request) *fakeSession {
	session := s.sessions[irma.RequestorToken(chi.URLParam(r, "token"))]
	if session == nil {
		writeError(w, http.StatusBadRequest, "SESSION_UNKNOWN", "")
	}
	return session
}

func (s *IrmaServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if session := s.session(w, r); session != nil {
		writeJson(w, session.result.Status)
	}
}

func (s *IrmaServer) handleResult(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if session := s.session(w, r); session != nil {
		writeJson(w, session.result)
	}
}

func (s *IrmaServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session := s.session(w, r)
	if session == nil {
		return
	}
	if !session.result.Status.Finished() {
		session.result.Status = irma.ServerStatusCancelled
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJson(w http.ResponseWriter, object interface{}) {
	bts, err := json.Marshal(object)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bts)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	bts, _ := json.Marshal(&irma.RemoteError{
		Status:      status,
		ErrorName:   name,
		Description: http.StatusText(status),
		Message:     message,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bts)
}
