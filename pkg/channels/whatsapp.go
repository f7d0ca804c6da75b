package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/iarabot/iara/pkg/bus"
	"github.com/iarabot/iara/pkg/config"
	"github.com/iarabot/iara/pkg/logger"
	"github.com/iarabot/iara/pkg/utils"
)

// Processor handles one inbound message end to end and returns the reply.
// send is false when nothing should be delivered.
type Processor interface {
	Process(ctx context.Context, msg bus.InboundMessage) (out bus.OutboundMessage, send bool)
}

// WhatsAppChannel serves the Cloud API webhook (verification handshake +
// message events) and delivers replies through the Graph API.
//
// Policy: events are always acknowledged with 200 before processing so the
// platform never retries. A retried event would duplicate side effects
// that may already be applied; a late reply is the lesser evil.
type WhatsAppChannel struct {
	cfg        config.WhatsAppConfig
	gateway    config.GatewayConfig
	processor  Processor
	httpClient *http.Client
	server     *http.Server
	running    atomic.Bool
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig, gateway config.GatewayConfig, processor Processor) *WhatsAppChannel {
	return &WhatsAppChannel{
		cfg:       cfg,
		gateway:   gateway,
		processor: processor,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *WhatsAppChannel) Name() string {
	return "whatsapp"
}

// Handler returns the webhook HTTP handler.
func (c *WhatsAppChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(c.cfg.WebhookPath, c.handleWebhook)
	return mux
}

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.gateway.Host, c.gateway.Port)
	c.server = &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoCF("whatsapp", "Webhook listening", map[string]interface{}{
			"addr": addr,
			"path": c.cfg.WebhookPath,
		})
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("whatsapp", "Webhook server stopped", map[string]interface{}{"error": err.Error()})
			c.running.Store(false)
		}
	}()

	c.running.Store(true)
	return nil
}

func (c *WhatsAppChannel) Stop(ctx context.Context) error {
	c.running.Store(false)
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

func (c *WhatsAppChannel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.handleVerification(w, r)
	case http.MethodPost:
		c.handleEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification echoes the challenge when the caller knows the shared
// verify token.
func (c *WhatsAppChannel) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == c.cfg.VerifyToken {
		logger.InfoC("whatsapp", "Webhook verified")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
		return
	}

	logger.WarnC("whatsapp", "Webhook verification rejected")
	w.WriteHeader(http.StatusForbidden)
}

// handleEvent acknowledges every event with 200, extracts at most one text
// message and processes it in its own goroutine. Internal failures never
// become transport failures.
func (c *WhatsAppChannel) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONStatus(w, "ignored")
		return
	}

	msg, ok := extractTextMessage(body)
	if !ok {
		writeJSONStatus(w, "ignored")
		return
	}

	writeJSONStatus(w, "received")

	// The request context dies when the handler returns; processing
	// continues on its own.
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorCF("whatsapp", "Event processing panicked", map[string]interface{}{"panic": fmt.Sprintf("%v", rec)})
			}
		}()

		ctx := context.Background()
		out, send := c.processor.Process(ctx, msg)
		if !send {
			return
		}
		if err := c.Send(ctx, out); err != nil {
			logger.ErrorCF("whatsapp", "Delivery failed", map[string]interface{}{
				"chat_id": out.ChatID,
				"error":   err.Error(),
			})
		}
	}()
}

func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Cloud API event envelope, reduced to the fields the core reads.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// extractTextMessage pulls the first text message out of the webhook
// envelope. Statuses, media and any other payload shape yield ok=false.
func extractTextMessage(body []byte) (bus.InboundMessage, bool) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return bus.InboundMessage{}, false
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text.Body == "" || m.From == "" {
					continue
				}
				return bus.InboundMessage{
					Channel:   "whatsapp",
					SenderID:  m.From,
					ChatID:    m.From,
					Content:   m.Text.Body,
					MessageID: m.ID,
				}, true
			}
		}
	}
	return bus.InboundMessage{}, false
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// Send posts one text message to the sender through the Graph API.
func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.cfg.AccessToken == "" || c.cfg.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp outbound credentials not configured")
	}

	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               msg.ChatID,
		Type:             "text",
		Text:             sendText{Body: msg.Content},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", c.cfg.GraphBaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, utils.Truncate(string(respBody), 200))
	}

	logger.DebugCF("whatsapp", "Message delivered", map[string]interface{}{"chat_id": msg.ChatID})
	return nil
}
