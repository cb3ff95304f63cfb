package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"media-relay/internal/database"
	"media-relay/internal/dispatch"
	"media-relay/internal/transcoder"
)

func TestDispatchSend(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/dispatch", "file", "memo.ogg", "audio/ogg", []byte("OggS"), map[string]string{
		"recipient": "@relay",
		"isRecord":  "true",
		"caption":   "hi",
	})
	w := httptest.NewRecorder()
	env.h.Dispatch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !env.dispatcher.sent || env.dispatcher.lastRecipient != "@relay" {
		t.Errorf("Send not called with recipient: %+v", env.dispatcher)
	}
	in := env.dispatcher.lastReq
	if !in.IsRecord || in.Caption != "hi" || in.Input.Filename != "memo.ogg" || in.Input.ContentType != "audio/ogg" {
		t.Errorf("request = %+v", in)
	}

	var resp DispatchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.DryRun {
		t.Error("DryRun = true, want false")
	}
	if resp.Payload == nil || resp.Payload.Kind != dispatch.KindAudioFile {
		t.Errorf("payload = %+v", resp.Payload)
	}
	if resp.Receipt == nil || resp.Receipt.MessageID != "9" {
		t.Errorf("receipt = %+v", resp.Receipt)
	}
}

func TestDispatchDryRun(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"no recipient", nil},
		{"explicit", map[string]string{"recipient": "42", "dryRun": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := multipartRequest(t, "/api/dispatch", "file", "photo.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff}, tt.values)
			w := httptest.NewRecorder()
			env.h.Dispatch(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if env.dispatcher.sent {
				t.Error("dry run reached the transport")
			}
			var resp DispatchResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if !resp.DryRun || resp.Receipt != nil {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestDispatchRequiresRecipientToSend(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/dispatch", "file", "a.pdf", "", []byte("%PDF"), map[string]string{"dryRun": "false"})
	w := httptest.NewRecorder()
	env.h.Dispatch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDispatchErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"transport", &dispatch.SendError{Stage: dispatch.StageTransport, Kind: dispatch.KindVideo, Err: errors.New("bad gateway")}, http.StatusBadGateway},
		{"transcode", &dispatch.SendError{Stage: dispatch.StageTranscode, Kind: dispatch.KindAudioPTT, Err: transcoder.ErrTimeout}, http.StatusUnprocessableEntity},
		{"no transport", &dispatch.SendError{Stage: dispatch.StageTransport, Err: dispatch.ErrNoTransport}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.dispatcher.err = tt.err
			req := multipartRequest(t, "/api/dispatch", "file", "clip.mov", "", []byte("moov"), map[string]string{"recipient": "42"})
			w := httptest.NewRecorder()
			env.h.Dispatch(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestListDispatches(t *testing.T) {
	env := newTestEnv(t)
	env.journal.records = []database.DispatchRecord{
		{ID: "b", CreatedAt: time.Now(), Filename: "clip.mov", ResolvedClass: "video", Status: database.StatusSent},
		{ID: "a", CreatedAt: time.Now().Add(-time.Minute), Filename: "memo.ogg", ResolvedClass: "audio", Status: database.StatusPrepared},
	}

	w := httptest.NewRecorder()
	env.h.ListDispatches(w, httptest.NewRequest(http.MethodGet, "/api/dispatches?limit=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if env.journal.lastLimit != 2 {
		t.Errorf("limit = %d, want 2", env.journal.lastLimit)
	}
	var body struct {
		Dispatches []database.DispatchRecord `json:"dispatches"`
		Count      int                       `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Dispatches[0].ID != "b" {
		t.Errorf("body = %+v", body)
	}
}

func TestListDispatchesEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.h.ListDispatches(w, httptest.NewRequest(http.MethodGet, "/api/dispatches", nil))

	if got := w.Body.String(); got != "{\"count\":0,\"dispatches\":[]}\n" {
		t.Errorf("body = %q", got)
	}
	if env.journal.lastLimit != 0 {
		t.Errorf("limit = %d, want 0 (store default)", env.journal.lastLimit)
	}
}

func TestListDispatchesErrors(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.h.ListDispatches(w, httptest.NewRequest(http.MethodGet, "/api/dispatches?limit=ten", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}

	env.journal.err = errors.New("database is locked")
	w = httptest.NewRecorder()
	env.h.ListDispatches(w, httptest.NewRequest(http.MethodGet, "/api/dispatches", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("store error: status = %d, want 500", w.Code)
	}
}
