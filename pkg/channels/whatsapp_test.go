package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iarabot/iara/pkg/bus"
	"github.com/iarabot/iara/pkg/config"
)

type fakeProcessor struct {
	mu       sync.Mutex
	received []bus.InboundMessage
	reply    string
	send     bool
	done     chan struct{}
}

func newFakeProcessor(reply string, send bool) *fakeProcessor {
	return &fakeProcessor{reply: reply, send: send, done: make(chan struct{}, 8)}
}

func (f *fakeProcessor) Process(ctx context.Context, msg bus.InboundMessage) (bus.OutboundMessage, bool) {
	f.mu.Lock()
	f.received = append(f.received, msg)
	f.mu.Unlock()
	f.done <- struct{}{}
	return bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: f.reply}, f.send
}

func (f *fakeProcessor) messages() []bus.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.InboundMessage(nil), f.received...)
}

func (f *fakeProcessor) waitForCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("processor was never called")
	}
}

func testChannel(processor Processor, graphURL string) *WhatsAppChannel {
	return NewWhatsAppChannel(config.WhatsAppConfig{
		VerifyToken:   "segredo",
		AccessToken:   "token",
		PhoneNumberID: "1234567890",
		GraphBaseURL:  graphURL,
		WebhookPath:   "/webhook",
	}, config.GatewayConfig{Host: "127.0.0.1", Port: 0}, processor)
}

func eventBody(msgType, text string) string {
	return `{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{
						"from": "5511988887777",
						"id": "wamid.abc123",
						"type": "` + msgType + `",
						"text": {"body": "` + text + `"}
					}]
				}
			}]
		}]
	}`
}

func TestVerificationEchoesChallenge(t *testing.T) {
	c := testChannel(newFakeProcessor("", false), "http://unused")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=segredo&hub.challenge=42desafio")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "42desafio" {
		t.Fatalf("body = %q, want the raw challenge", body)
	}
}

func TestVerificationRejectsWrongToken(t *testing.T) {
	c := testChannel(newFakeProcessor("", false), "http://unused")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	tests := []struct {
		name  string
		query string
	}{
		{"wrong token", "hub.mode=subscribe&hub.verify_token=errado&hub.challenge=x"},
		{"missing token", "hub.mode=subscribe&hub.challenge=x"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=segredo&hub.challenge=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/webhook?" + tt.query)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", resp.StatusCode)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := testChannel(newFakeProcessor("", false), "http://unused")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/webhook", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestTextEventIsAcknowledgedAndProcessed(t *testing.T) {
	// Graph API double so Send has somewhere to go.
	var sentMu sync.Mutex
	var sentBodies []map[string]interface{}
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		sentMu.Lock()
		sentBodies = append(sentBodies, body)
		sentMu.Unlock()
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"messages":[{"id":"wamid.out"}]}`)
	}))
	defer graph.Close()

	processor := newFakeProcessor("Oi! Tudo bem?", true)
	c := testChannel(processor, graph.URL)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(eventBody("text", "oi iara")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["status"] != "received" {
		t.Fatalf("ack = %v, want received", ack)
	}

	processor.waitForCall(t)
	msgs := processor.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 processed message, got %d", len(msgs))
	}
	if msgs[0].Content != "oi iara" || msgs[0].SenderID != "5511988887777" {
		t.Fatalf("unexpected inbound message: %+v", msgs[0])
	}
	if msgs[0].Channel != "whatsapp" {
		t.Fatalf("channel = %q", msgs[0].Channel)
	}

	// Delivery is asynchronous too; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sentMu.Lock()
		n := len(sentBodies)
		sentMu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reply never reached the graph API")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sentMu.Lock()
	body := sentBodies[0]
	sentMu.Unlock()
	if body["messaging_product"] != "whatsapp" {
		t.Fatalf("messaging_product = %v", body["messaging_product"])
	}
	if body["to"] != "5511988887777" {
		t.Fatalf("to = %v", body["to"])
	}
	text, _ := body["text"].(map[string]interface{})
	if text["body"] != "Oi! Tudo bem?" {
		t.Fatalf("text body = %v", text["body"])
	}
}

func TestNonTextEventIsIgnoredWith200(t *testing.T) {
	processor := newFakeProcessor("não deveria rodar", true)
	c := testChannel(processor, "http://unused")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	for _, body := range []string{
		eventBody("image", ""),
		eventBody("audio", ""),
		`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`,
		`não é json`,
	} {
		resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		var ack map[string]string
		json.NewDecoder(resp.Body).Decode(&ack)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if ack["status"] != "ignored" {
			t.Fatalf("ack = %v, want ignored", ack)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if got := processor.messages(); len(got) != 0 {
		t.Fatalf("non-text events must not reach the processor, got %d", len(got))
	}
}

func TestSendFailsWithoutCredentials(t *testing.T) {
	c := NewWhatsAppChannel(config.WhatsAppConfig{GraphBaseURL: "http://unused"}, config.GatewayConfig{}, newFakeProcessor("", false))
	err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "123", Content: "oi"})
	if err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestSendReportsGraphError(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Invalid OAuth access token"}}`)
	}))
	defer graph.Close()

	c := testChannel(newFakeProcessor("", false), graph.URL)
	err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "123", Content: "oi"})
	if err == nil {
		t.Fatalf("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error should carry the status: %v", err)
	}
}
