package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media-relay/internal/dispatch"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.Chattable
	errs  []error
	reply tgbotapi.Message
	// afterSend runs after each call, before its result is returned.
	afterSend func()
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.afterSend != nil {
		f.afterSend()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return f.reply, nil
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testConfig() Config {
	return Config{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxRetryAfter: 5 * time.Millisecond}
}

func payload(kind dispatch.Kind) *dispatch.Payload {
	return &dispatch.Payload{
		Kind:     kind,
		Data:     []byte("bytes"),
		MIME:     "application/octet-stream",
		Filename: "clip.bin",
		Caption:  "hello",
	}
}

func TestSendMapsKindToMessage(t *testing.T) {
	tests := []struct {
		kind  dispatch.Kind
		check func(t *testing.T, c tgbotapi.Chattable)
	}{
		{dispatch.KindAudioPTT, func(t *testing.T, c tgbotapi.Chattable) {
			if _, ok := c.(tgbotapi.VoiceConfig); !ok {
				t.Errorf("got %T, want VoiceConfig", c)
			}
		}},
		{dispatch.KindAudioFile, func(t *testing.T, c tgbotapi.Chattable) {
			if _, ok := c.(tgbotapi.AudioConfig); !ok {
				t.Errorf("got %T, want AudioConfig", c)
			}
		}},
		{dispatch.KindVideo, func(t *testing.T, c tgbotapi.Chattable) {
			v, ok := c.(tgbotapi.VideoConfig)
			if !ok {
				t.Fatalf("got %T, want VideoConfig", c)
			}
			if !v.SupportsStreaming {
				t.Error("video should be sent as streamable")
			}
		}},
		{dispatch.KindImage, func(t *testing.T, c tgbotapi.Chattable) {
			if _, ok := c.(tgbotapi.PhotoConfig); !ok {
				t.Errorf("got %T, want PhotoConfig", c)
			}
		}},
		{dispatch.KindDocument, func(t *testing.T, c tgbotapi.Chattable) {
			d, ok := c.(tgbotapi.DocumentConfig)
			if !ok {
				t.Fatalf("got %T, want DocumentConfig", c)
			}
			if d.Caption != "hello" {
				t.Errorf("Caption = %q, want hello", d.Caption)
			}
			if d.ChatID != 42 {
				t.Errorf("ChatID = %d, want 42", d.ChatID)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			bot := &fakeSender{}
			tr := NewWithSender(bot, testConfig())
			if _, err := tr.Send(context.Background(), "42", payload(tt.kind)); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if bot.calls() != 1 {
				t.Fatalf("calls = %d, want 1", bot.calls())
			}
			tt.check(t, bot.sent[0])
		})
	}
}

func TestSendChannelRecipient(t *testing.T) {
	bot := &fakeSender{}
	tr := NewWithSender(bot, testConfig())

	if _, err := tr.Send(context.Background(), "@relay", payload(dispatch.KindAudioPTT)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	v := bot.sent[0].(tgbotapi.VoiceConfig)
	if v.ChannelUsername != "@relay" {
		t.Errorf("ChannelUsername = %q, want @relay", v.ChannelUsername)
	}
	if v.ChatID != 0 {
		t.Errorf("ChatID = %d, want 0", v.ChatID)
	}
}

func TestSendInvalidRecipient(t *testing.T) {
	for _, recipient := range []string{"", "@", "not-a-chat"} {
		bot := &fakeSender{}
		tr := NewWithSender(bot, testConfig())
		_, err := tr.Send(context.Background(), recipient, payload(dispatch.KindDocument))
		if !errors.Is(err, ErrInvalidRecipient) {
			t.Errorf("Send(%q) error = %v, want ErrInvalidRecipient", recipient, err)
		}
		if bot.calls() != 0 {
			t.Errorf("Send(%q) reached the API", recipient)
		}
	}
}

func TestFileDataPrefersPath(t *testing.T) {
	p := payload(dispatch.KindVideo)
	p.Path = filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(p.Path, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, ok := fileData(p).(tgbotapi.FilePath); !ok || string(got) != p.Path {
		t.Errorf("fileData() = %#v, want FilePath(%q)", fileData(p), p.Path)
	}

	// A released artifact falls back to the bytes held in memory.
	if err := os.Remove(p.Path); err != nil {
		t.Fatal(err)
	}
	if got, ok := fileData(p).(tgbotapi.FileBytes); !ok || string(got.Bytes) != "bytes" {
		t.Errorf("fileData() after removal = %#v, want FileBytes", fileData(p))
	}

	p.Path = ""
	got, ok := fileData(p).(tgbotapi.FileBytes)
	if !ok {
		t.Fatalf("fileData() = %T, want FileBytes", fileData(p))
	}
	if got.Name != "clip.bin" || string(got.Bytes) != "bytes" {
		t.Errorf("fileData() = %+v", got)
	}
}

func TestSendReceipt(t *testing.T) {
	bot := &fakeSender{reply: tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: -1001}}}
	tr := NewWithSender(bot, testConfig())

	receipt, err := tr.Send(context.Background(), "@relay", payload(dispatch.KindImage))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if receipt.MessageID != "77" {
		t.Errorf("MessageID = %q, want 77", receipt.MessageID)
	}
	if receipt.ChatID != "-1001" {
		t.Errorf("ChatID = %q, want -1001", receipt.ChatID)
	}
	if receipt.SentAt.IsZero() {
		t.Error("SentAt not set")
	}
}

func TestSendRetriesTransientErrors(t *testing.T) {
	rateLimited := &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1},
	}
	bot := &fakeSender{errs: []error{rateLimited, &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}}}
	tr := NewWithSender(bot, testConfig())

	if _, err := tr.Send(context.Background(), "42", payload(dispatch.KindAudioFile)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if bot.calls() != 3 {
		t.Errorf("calls = %d, want 3", bot.calls())
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	bad := &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	bot := &fakeSender{errs: []error{bad}}
	tr := NewWithSender(bot, testConfig())

	_, err := tr.Send(context.Background(), "42", payload(dispatch.KindDocument))
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("Send() error = %v, want API error 400", err)
	}
	if bot.calls() != 1 {
		t.Errorf("calls = %d, want 1", bot.calls())
	}
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	network := errors.New("connection reset by peer")
	bot := &fakeSender{errs: []error{network, network, network, network}}
	tr := NewWithSender(bot, testConfig())

	_, err := tr.Send(context.Background(), "42", payload(dispatch.KindDocument))
	if !errors.Is(err, network) {
		t.Fatalf("Send() error = %v, want %v", err, network)
	}
	if bot.calls() != 3 {
		t.Errorf("calls = %d, want 3", bot.calls())
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		limit time.Duration
		want  time.Duration
	}{
		{"plain error", errors.New("boom"), time.Minute, 0},
		{"no hint", &tgbotapi.Error{Code: 429}, time.Minute, 0},
		{"hint", &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}, time.Minute, 3 * time.Second},
		{"capped", &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 90}}, time.Minute, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfter(tt.err, tt.limit); got != tt.want {
				t.Errorf("retryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &tgbotapi.Error{Code: 429}, true},
		{"server error", &tgbotapi.Error{Code: 500}, true},
		{"forbidden", &tgbotapi.Error{Code: 403}, false},
		{"network", errors.New("dial tcp: i/o timeout"), true},
		{"canceled", context.Canceled, false},
		{"missing file", &os.PathError{Op: "open", Path: "/scratch/gone.mp4", Err: os.ErrNotExist}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendRetryAfterArtifactReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "converted.mp4")
	if err := os.WriteFile(path, []byte("mp4 on disk"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := payload(dispatch.KindVideo)
	p.Path = path
	p.Data = []byte("mp4 in memory")

	rateLimited := &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1},
	}
	bot := &fakeSender{errs: []error{rateLimited}}
	// The scratch sweeper removes the file while the sender is throttled.
	bot.afterSend = func() { _ = os.Remove(path) }
	tr := NewWithSender(bot, testConfig())

	if _, err := tr.Send(context.Background(), "42", p); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if bot.calls() != 2 {
		t.Fatalf("calls = %d, want 2", bot.calls())
	}
	if _, ok := bot.sent[0].(tgbotapi.VideoConfig).File.(tgbotapi.FilePath); !ok {
		t.Errorf("first attempt file = %T, want FilePath", bot.sent[0].(tgbotapi.VideoConfig).File)
	}
	retried, ok := bot.sent[1].(tgbotapi.VideoConfig).File.(tgbotapi.FileBytes)
	if !ok {
		t.Fatalf("retry file = %T, want FileBytes", bot.sent[1].(tgbotapi.VideoConfig).File)
	}
	if string(retried.Bytes) != "mp4 in memory" || retried.Name != p.Filename {
		t.Errorf("retry file = %+v", retried)
	}
}
