package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
)

func TestSenderPhoneFallback(t *testing.T) {
	tenant := &models.Tenant{ID: testTenant, InstanceName: testInstance}

	tests := []struct {
		name      string
		fail      []string
		wantTo    string
		wantTries int
		wantErr   bool
	}{
		{"first format accepted", nil, "5511999999999", 1, false},
		{"drops the ninth digit", []string{"5511999999999"}, "551199999999", 2, false},
		{"local format last", []string{"5511999999999", "551199999999"}, "11999999999", 3, false},
		{"all rejected", []string{"5511999999999", "551199999999", "11999999999"}, "", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{fail: map[string]bool{}}
			for _, f := range tt.fail {
				transport.fail[f] = true
			}
			sender := NewSender(0)
			sender.Register(models.TransportEvolution, transport)

			to, err := sender.Send(context.Background(), tenant, testContact, "oi")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send error = %v, wantErr %v", err, tt.wantErr)
			}
			if to != tt.wantTo {
				t.Errorf("accepted = %q, want %q", to, tt.wantTo)
			}
			if got := len(transport.attempts()); got != tt.wantTries {
				t.Errorf("attempts = %d, want %d", got, tt.wantTries)
			}
		})
	}
}

func TestSenderUnavailable(t *testing.T) {
	sender := NewSender(0)
	sender.Register(models.TransportEvolution, &fakeTransport{})

	_, err := sender.Send(context.Background(), &models.Tenant{ID: testTenant, Transport: models.TransportTwilio}, testContact, "oi")
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("err = %v, want ErrTransportUnavailable", err)
	}
	if _, err := sender.Send(context.Background(), &models.Tenant{ID: testTenant}, "abc", "oi"); err == nil {
		t.Error("invalid destination accepted")
	}
}

func TestEvolutionTransport(t *testing.T) {
	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		switch {
		case strings.HasPrefix(r.URL.Path, "/message/sendText/"):
			raw, _ := io.ReadAll(r.Body)
			gotBody = string(raw)
			if strings.Contains(gotBody, `"number":"000"`) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"exists: false"}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"key":{"id":"ABC"}}`))
		case r.URL.Path == "/instance/connectionState/loja1-zap":
			_, _ = w.Write([]byte(`{"instance":{"instanceName":"loja1-zap","state":"OPEN"}}`))
		case r.URL.Path == "/instance/connectionState/flat":
			_, _ = w.Write([]byte(`{"state":"close"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	evo := NewEvolutionTransport(srv.URL+"/", "secret", 2*time.Second)
	ctx := context.Background()

	if err := evo.SendText(ctx, testInstance, testContact, "Olá!"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotPath != "/message/sendText/loja1-zap" || gotKey != "secret" {
		t.Errorf("path = %q apikey = %q", gotPath, gotKey)
	}
	if !strings.Contains(gotBody, `"number":"5511999999999"`) || !strings.Contains(gotBody, `"text":"Olá!"`) {
		t.Errorf("body = %s", gotBody)
	}
	if err := evo.SendText(ctx, testInstance, "000", "x"); err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("rejected send: err = %v", err)
	}

	tests := []struct {
		instance string
		want     string
		wantErr  bool
	}{
		{"loja1-zap", "open", false},
		{"flat", "close", false},
		{"missing", "", true},
	}
	for _, tt := range tests {
		state, err := evo.ConnectionState(ctx, tt.instance)
		if (err != nil) != tt.wantErr || state != tt.want {
			t.Errorf("ConnectionState(%s) = %q, %v", tt.instance, state, err)
		}
	}
}

func TestNewTwilioTransportRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioTransport("", "token", "whatsapp:+14155238886"); err == nil {
		t.Error("missing sid accepted")
	}
	if _, err := NewTwilioTransport("AC123", "token", "whatsapp:+14155238886"); err != nil {
		t.Errorf("NewTwilioTransport: %v", err)
	}
}
