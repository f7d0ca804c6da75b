package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iarabot/iara/pkg/bus"
	"github.com/iarabot/iara/pkg/logger"
	"github.com/iarabot/iara/pkg/providers"
	"github.com/iarabot/iara/pkg/session"
	"github.com/iarabot/iara/pkg/usage"
	"github.com/iarabot/iara/pkg/utils"
)

// errorReply is the only failure detail the user ever sees. Internal
// errors stay in the logs.
const errorReply = "Tive um problema para pensar na resposta agora 🙈 Pode tentar de novo em um instante?"

// Pipeline runs the full message-processing flow for one inbound event:
// session load, live context, model call, action execution, sanitization,
// session update. Construct once at process start and share across
// requests.
type Pipeline struct {
	provider      providers.LLMProvider
	sessions      *session.Manager
	context       *ContextBuilder
	actions       *Interpreter
	usage         *usage.Store
	assistantName string
	model         string

	// One in-flight update per sender: concurrent requests from the same
	// sender are serialized, different senders proceed independently.
	senderLocks sync.Map // session key -> *sync.Mutex
}

func NewPipeline(provider providers.LLMProvider, sessions *session.Manager, contextBuilder *ContextBuilder, interpreter *Interpreter, usageStore *usage.Store, assistantName, model string) *Pipeline {
	return &Pipeline{
		provider:      provider,
		sessions:      sessions,
		context:       contextBuilder,
		actions:       interpreter,
		usage:         usageStore,
		assistantName: assistantName,
		model:         model,
	}
}

func (p *Pipeline) lockFor(key string) *sync.Mutex {
	mu, _ := p.senderLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Process handles one inbound message and returns the single outbound
// reply. send is false when nothing should be delivered (misconfigured
// backend). Errors never escape: every branch ends in a reply or a logged
// no-op, because the platform would retry a transport failure and
// duplicate already-applied side effects.
func (p *Pipeline) Process(ctx context.Context, msg bus.InboundMessage) (out bus.OutboundMessage, send bool) {
	key := msg.SessionKey()

	mu := p.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	logger.InfoCF("pipeline", fmt.Sprintf("Processing message from %s", key), map[string]interface{}{
		"channel": msg.Channel,
		"sender":  msg.SenderID,
		"preview": utils.Truncate(msg.Content, 80),
	})

	if p.provider == nil {
		// Model credentials missing: the pipeline cannot proceed. The
		// webhook still acknowledges the event; we just log the drop.
		logger.ErrorC("pipeline", "No model backend configured, dropping message")
		return bus.OutboundMessage{}, false
	}

	history := p.sessions.History(key)

	liveContext := ""
	if p.context != nil {
		liveContext = p.context.Build(ctx)
	}
	system := p.systemPrompt(time.Now(), liveContext)

	p.sessions.Append(key, session.Turn{Role: "user", Content: msg.Content})

	visible := ""
	resp, err := p.provider.Chat(ctx, toProviderMessages(history), msg.Content, system)
	if err != nil {
		logger.ErrorCF("pipeline", "Model call failed", map[string]interface{}{
			"session": key,
			"error":   err.Error(),
		})
		visible = errorReply
	} else {
		p.recordUsage(key, resp)
		visible = p.interpret(ctx, key, resp.Content)
	}

	visible = Sanitize(visible)
	p.sessions.Append(key, session.Turn{Role: "assistant", Content: visible})

	return bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: visible,
	}, true
}

// interpret extracts an embedded action from the raw model output,
// executes it when recognized, and returns the text with the matched span
// removed. A failed or malformed action never aborts the reply.
func (p *Pipeline) interpret(ctx context.Context, key, raw string) string {
	cmd, span, found := ExtractEmbeddedCommand(raw)
	if !found {
		return raw
	}

	visible := StripSpan(raw, span)

	if cmd == nil {
		logger.WarnCF("pipeline", "Malformed action payload in model output", map[string]interface{}{
			"session": key,
		})
		return visible
	}

	if p.actions == nil {
		logger.WarnCF("pipeline", "Action emitted but no datastore configured", map[string]interface{}{
			"session": key,
			"action":  cmd.Action,
		})
		return visible
	}

	executed, err := p.actions.Execute(ctx, cmd)
	if err != nil {
		logger.ErrorCF("pipeline", "Action execution failed", map[string]interface{}{
			"session": key,
			"action":  cmd.Action,
			"error":   err.Error(),
		})
	} else if executed {
		logger.InfoCF("pipeline", "Action executed", map[string]interface{}{
			"session": key,
			"action":  cmd.Action,
		})
	}
	return visible
}

func (p *Pipeline) recordUsage(key string, resp *providers.LLMResponse) {
	if p.usage == nil {
		return
	}
	rec := usage.Record{
		SessionKey: key,
		Model:      p.model,
	}
	if resp.Usage != nil {
		rec.UsageKnown = true
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
		rec.TotalTokens = resp.Usage.TotalTokens
	}
	p.usage.Add(rec)
}

func toProviderMessages(turns []session.Turn) []providers.Message {
	messages := make([]providers.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, providers.Message{Role: t.Role, Content: t.Content})
	}
	return messages
}

// systemPrompt is the identity block sent on every request: persona,
// current time, the action protocol and the live-context digest.
func (p *Pipeline) systemPrompt(now time.Time, liveContext string) string {
	name := p.assistantName
	if name == "" {
		name = "Iara"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Você é %s, uma assistente pessoal que conversa por mensagem de texto.
Seja direta, calorosa e objetiva. Responda sempre em texto simples, sem markdown.

Data e hora atuais: %s

Quando o usuário pedir para registrar algo, inclua no FINAL da resposta um único objeto JSON, em uma linha:
{"action":"<TIPO>","data":{...}}

Tipos disponíveis:
- CREATE_TASK: data com "descricao", "prioridade" (baixa|media|alta), "data_limite" opcional
- CREATE_HABIT: data com "nome", "frequencia"
- CREATE_REMINDER: data com "descricao", "data_hora" (AAAA-MM-DD HH:MM), "importancia"
- CREATE_FINANCE: data com "descricao", "valor", "tipo" (receita|despesa), "categoria"
- CREATE_PROJECT: data com "nome", "descricao"

Nunca emita mais de um objeto JSON por resposta e nunca use a ação SEARCH na resposta.`,
		name, now.Format("2006-01-02 15:04 (Monday)"))

	if strings.TrimSpace(liveContext) != "" {
		b.WriteString("\n\nDados atuais do usuário:\n\n")
		b.WriteString(liveContext)
	}
	return b.String()
}
