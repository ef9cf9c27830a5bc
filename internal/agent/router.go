package agent

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/extract"
	"github.com/starford/synapse/internal/oracle"
)

//go:embed prompts/router.md
var routerPrompt string

var routerTemplate = template.Must(template.New("router").Parse(routerPrompt))

// ParameterDescriber is implemented by handlers that tell the Router which
// fields to extract for them.
type ParameterDescriber interface {
	Parameters() string
}

// DirectiveSource renders the user's standing directives for prompts.
type DirectiveSource interface {
	Render(ctx context.Context) (string, error)
}

// User-facing fallbacks.
const (
	unavailableAnswer = "I'm not able to handle that kind of request yet. Could you rephrase it?"
	emptyAnswer       = "I'm not sure how to answer that. Could you give me a bit more detail?"
	confusedAnswer    = "Sorry, I couldn't work out what to do with that message. Could you rephrase it?"
)

// Router classifies messages with one oracle call.
type Router struct {
	oracle     oracle.Oracle
	registry   *Registry
	directives DirectiveSource
	fallback   string
	now        func() time.Time
	logger     *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithFallbackIntent sets the intent used when the oracle's reply cannot
// be parsed. It must name a registered handler to take effect.
func WithFallbackIntent(intent string) RouterOption {
	return func(r *Router) { r.fallback = intent }
}

// WithRouterClock overrides time.Now.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router. The prompt lists whatever handlers registry
// holds at classification time.
func NewRouter(o oracle.Oracle, registry *Registry, directives DirectiveSource, opts ...RouterOption) *Router {
	r := &Router{
		oracle:     o,
		registry:   registry,
		directives: directives,
		fallback:   "file",
		now:        time.Now,
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type handlerView struct {
	Name, Description, Parameters string
}

type promptData struct {
	Now         string
	Handlers    []handlerView
	Directives  string
	History     string
	Message     string
	Attachments []string
}

// Prompt builds the classification prompt for mc.
func (r *Router) Prompt(ctx context.Context, mc MessageContext) (string, error) {
	data := promptData{
		Now:         r.now().Format("2006-01-02 15:04"),
		History:     conversation.Render(mc.History),
		Message:     mc.Text,
		Attachments: mc.TextFragments(),
		Directives:  directive.Placeholder,
	}
	for _, h := range r.registry.Handlers() {
		v := handlerView{Name: h.Name(), Description: h.Description()}
		if pd, ok := h.(ParameterDescriber); ok {
			v.Parameters = pd.Parameters()
		}
		data.Handlers = append(data.Handlers, v)
	}
	if r.directives != nil {
		text, err := r.directives.Render(ctx)
		if err != nil {
			logger(mc, r.logger).Warn("router: directives unavailable", slog.String("error", err.Error()))
		} else {
			data.Directives = text
		}
	}
	var buf bytes.Buffer
	if err := routerTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("router: render prompt: %w", err)
	}
	return buf.String(), nil
}

// Classify makes exactly one oracle call and returns a validated decision.
// Oracle transport failures are returned as errors; malformed output never is.
func (r *Router) Classify(ctx context.Context, mc MessageContext) (Decision, error) {
	log := logger(mc, r.logger)
	prompt, err := r.Prompt(ctx, mc)
	if err != nil {
		return Decision{}, err
	}
	resp, err := r.oracle.Generate(ctx, oracle.Request{Prompt: prompt})
	if err != nil {
		return Decision{}, fmt.Errorf("router: classify: %w", err)
	}

	obj, err := extract.Object(resp.Text)
	if err != nil {
		d := r.fallbackDecision()
		d.Tokens = resp.Tokens
		log.Warn("router: unparseable reply",
			slog.String("error", err.Error()),
			slog.String("fallback", d.Intent))
		return d, nil
	}

	d := decode(obj)
	d.Tokens = resp.Tokens
	switch {
	case d.Intent == "":
		fb := r.fallbackDecision()
		fb.Tokens, fb.Fields = d.Tokens, d.Fields
		log.Warn("router: reply without intent", slog.String("fallback", fb.Intent))
		return fb, nil
	case d.Intent == IntentQuestion:
		if strings.TrimSpace(d.Answer) == "" {
			d.Answer = emptyAnswer
		}
	default:
		if _, ok := r.registry.Lookup(d.Intent); !ok {
			uerr := &apperr.UnknownIntentError{Intent: d.Intent}
			log.Warn("router: falling back to question", slog.String("error", uerr.Error()))
			d = Decision{Intent: IntentQuestion, Answer: unavailableAnswer, Fields: d.Fields, Tokens: d.Tokens}
		}
	}
	log.Info("router: classified", slog.String("intent", d.Intent), slog.Int("tokens", d.Tokens))
	return d, nil
}

func (r *Router) fallbackDecision() Decision {
	if _, ok := r.registry.Lookup(r.fallback); ok {
		return Decision{Intent: r.fallback}
	}
	return Decision{Intent: IntentQuestion, Answer: confusedAnswer}
}

// decode reads the oracle's object field by field, tolerating wrong types.
func decode(obj map[string]any) Decision {
	d := Decision{
		Intent:          strings.ToLower(strings.TrimSpace(str(obj["intent"]))),
		Answer:          str(obj["answer"]),
		SearchTerms:     strs(obj["search_terms"]),
		Folders:         strs(obj["folders"]),
		Mode:            str(obj["mode"]),
		Question:        str(obj["question"]),
		TargetFiles:     strs(obj["target_files"]),
		EditDescription: str(obj["edit_description"]),
		Action:          strings.ToLower(strings.TrimSpace(str(obj["action"]))),
		Directive:       str(obj["directive"]),
		Index:           num(obj["index"]),
		Fields:          obj,
	}
	return d
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func strs(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s := strings.TrimSpace(str(it)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func num(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if err == nil {
			return n
		}
	}
	return 0
}

func logger(mc MessageContext, fallback *slog.Logger) *slog.Logger {
	if mc.Logger != nil {
		return mc.Logger
	}
	return fallback
}
