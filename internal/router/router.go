package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/command"
	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/gateway"
	"github.com/kastelov/lexitrain/internal/i18n"
	"github.com/kastelov/lexitrain/internal/lesson"
	"github.com/kastelov/lexitrain/internal/llm"
	"github.com/kastelov/lexitrain/internal/store"
	"github.com/kastelov/lexitrain/internal/validate"
)

// Translator produces dictionary entries for /add; *llm.Gateway implements it.
type Translator interface {
	Translate(ctx context.Context, text, srcLang, tgtLang string) (*llm.Translation, error)
}

var cefrLevels = map[string]bool{
	"A1": true, "A2": true, "B1": true, "B2": true, "C1": true, "C2": true,
}

// pendingQuestion is the question a profile is currently answering.
type pendingQuestion struct {
	lesson   *store.Lesson
	question *lesson.Question
}

// Router connects the chat gateway to the training logic: it resolves the
// caller, dispatches slash commands and treats bare text as lesson answers.
type Router struct {
	store      *store.Store
	engine     *lesson.Engine
	translator Translator
	gw         *gateway.Gateway
	commands   *command.Registry
	cfg        *config.Config
	indexer    *lesson.SemanticPool
	clock      clock.Clock
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingQuestion // profileID -> question in flight
}

// New creates a router and registers the built-in commands.
func New(st *store.Store, engine *lesson.Engine, translator Translator,
	gw *gateway.Gateway, cfg *config.Config, clk clock.Clock, logger *zap.Logger) *Router {
	r := &Router{
		store:      st,
		engine:     engine,
		translator: translator,
		gw:         gw,
		commands:   command.NewRegistry(),
		cfg:        cfg,
		clock:      clk,
		logger:     logger,
		pending:    make(map[string]*pendingQuestion),
	}
	r.registerCommands()
	return r
}

// SetIndexer enables best-effort vector indexing of newly added words.
func (r *Router) SetIndexer(p *lesson.SemanticPool) {
	r.indexer = p
}

func (r *Router) registerCommands() {
	r.commands.Register(&command.Command{
		Name: "start", Usage: "/start [native] [target] [level]",
		Description: "set up a learning profile", Handler: r.handleStart,
	})
	r.commands.Register(&command.Command{
		Name: "add", Usage: "/add <word>",
		Description: "add a word to the vocabulary", Handler: r.handleAdd,
	})
	r.commands.Register(&command.Command{
		Name: "lesson", Usage: "/lesson",
		Description: "start or resume a lesson", Handler: r.handleLesson,
	})
	r.commands.Register(&command.Command{
		Name: "stats", Usage: "/stats",
		Description: "show learning progress", Handler: r.handleStats,
	})
	r.commands.Register(&command.Command{
		Name: "notify", Usage: "/notify on|off",
		Description: "toggle practice reminders", Handler: r.handleNotify,
	})
	r.commands.Register(&command.Command{
		Name: "lang", Usage: "/lang en|ru",
		Description: "switch interface language", Handler: r.handleLang,
	})
	r.commands.Register(&command.Command{
		Name: "help", Usage: "/help",
		Description: "list commands", Handler: r.handleHelp,
	})
}

// Handle routes one inbound message. Signature matches gateway.MessageHandler.
func (r *Router) Handle(msg *gateway.InboundMessage) {
	ctx := context.Background()
	r.logger.Info("routing message",
		zap.String("platform", msg.Platform),
		zap.String("user", msg.UserID))

	name, _, isCmd := command.Parse(msg.Content)

	user, err := r.store.FindUserByChat(ctx, msg.Platform, msg.UserID)
	if errors.Is(err, store.ErrNotFound) {
		if isCmd && (name == "start" || name == "help") {
			user, err = r.register(ctx, msg)
		} else {
			r.send(ctx, msg, i18n.T(i18n.Default, "need_start"), nil)
			return
		}
	}
	if err != nil {
		r.logger.Error("resolve user failed", zap.Error(err))
		r.send(ctx, msg, i18n.T(i18n.Default, "error_generic"), nil)
		return
	}

	if err := r.store.TouchUser(ctx, user.ID, msg.ChannelID, r.clock.Now()); err != nil {
		r.logger.Warn("touch user failed", zap.Error(err))
	}

	profile, err := r.store.ActiveProfile(ctx, user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Error("load profile failed", zap.Error(err))
		r.send(ctx, msg, i18n.T(user.InterfaceLang, "error_generic"), nil)
		return
	}

	cc := &command.Context{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		User:      user,
		Profile:   profile,
	}

	if isCmd {
		res, handled, err := r.commands.Dispatch(ctx, msg.Content, cc)
		if err != nil {
			r.logger.Error("command failed", zap.String("command", name), zap.Error(err))
			r.send(ctx, msg, i18n.T(user.InterfaceLang, "error_generic"), nil)
			return
		}
		if !handled {
			r.send(ctx, msg, i18n.T(user.InterfaceLang, "unknown_command", name), nil)
			return
		}
		r.send(ctx, msg, res.Content, res.Options)
		return
	}

	r.handleAnswer(ctx, msg, cc)
}

// register creates a user record on first contact. The profile itself is
// created by /start's handler.
func (r *Router) register(ctx context.Context, msg *gateway.InboundMessage) (*store.User, error) {
	iface := i18n.Default
	return r.store.CreateUser(ctx, &store.User{
		Platform:        msg.Platform,
		ExternalID:      msg.UserID,
		ChannelID:       msg.ChannelID,
		NativeLang:      "en",
		InterfaceLang:   iface,
		TZ:              r.cfg.DefaultTZ,
		NotificationsOn: true,
		LastActiveAt:    r.clock.Now(),
	})
}

func (r *Router) handleStart(ctx context.Context, args string, cc *command.Context) (*command.Result, error) {
	native, target, cefr := "en", "ru", "A1"
	fields := strings.Fields(args)
	if len(fields) > 0 {
		native = strings.ToLower(fields[0])
	}
	if len(fields) > 1 {
		target = strings.ToLower(fields[1])
	}
	if len(fields) > 2 {
		cefr = strings.ToUpper(fields[2])
	}
	if !cefrLevels[cefr] {
		cefr = "A1"
	}

	lang := cc.User.InterfaceLang
	if cc.User.NativeLang != native {
		if err := r.store.SetNativeLang(ctx, cc.User.ID, native); err != nil {
			return nil, err
		}
		if i18n.Supported(native) {
			lang = native
			if err := r.store.SetInterfaceLang(ctx, cc.User.ID, native); err != nil {
				return nil, err
			}
		}
	}

	profile, err := r.store.SwitchActiveProfile(ctx, cc.User.ID, target, cefr)
	if err != nil {
		return nil, err
	}

	key := "welcome"
	if cc.Profile != nil {
		key = "welcome_back"
	}
	return &command.Result{
		Content: i18n.T(lang, key, native, profile.TargetLang, profile.CEFR),
	}, nil
}

func (r *Router) handleAdd(ctx context.Context, args string, cc *command.Context) (*command.Result, error) {
	lang := cc.User.InterfaceLang
	if cc.Profile == nil {
		return &command.Result{Content: i18n.T(lang, "need_start")}, nil
	}
	text := validate.Normalize(args)
	if text == "" {
		return &command.Result{Content: i18n.T(lang, "add_usage")}, nil
	}

	native := cc.User.NativeLang
	target := cc.Profile.TargetLang

	word, err := r.store.GetWordByText(ctx, text, target)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if word != nil {
		if _, err := r.store.FindUserWord(ctx, cc.Profile.ID, word.ID); err == nil {
			return &command.Result{Content: i18n.T(lang, "word_exists", text)}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if word == nil || len(word.Translations[native]) == 0 {
		tr, err := r.translator.Translate(ctx, text, target, native)
		if err != nil {
			if errors.Is(err, llm.ErrTranslationUnavailable) || errors.Is(err, llm.ErrModelShape) {
				return &command.Result{Content: i18n.T(lang, "translation_unavailable")}, nil
			}
			return nil, err
		}
		if word == nil {
			word = &store.Word{Text: text, Language: target, CEFR: cc.Profile.CEFR}
		}
		if word.Translations == nil {
			word.Translations = map[string][]string{}
		}
		word.Translations[native] = tr.Translations
		word.Examples = append(word.Examples, tr.Examples...)
		if len(word.Forms) == 0 {
			word.Forms = tr.Forms
		}
	}

	if _, err := r.store.AddWordToVocabulary(ctx, cc.Profile.ID, word, r.cfg.SRS.DefaultEF); err != nil {
		return nil, err
	}

	if r.indexer != nil {
		if err := r.indexer.Index(ctx, word); err != nil {
			r.logger.Warn("word indexing failed",
				zap.String("word_id", word.ID), zap.Error(err))
		}
	}

	translations := strings.Join(word.Translations[native], ", ")
	if len(word.Examples) > 0 {
		var lines []string
		for i, ex := range word.Examples {
			if i == 2 {
				break
			}
			lines = append(lines, ex.Src+" — "+ex.Tgt)
		}
		return &command.Result{
			Content: i18n.T(lang, "word_added", text, translations, strings.Join(lines, "\n")),
		}, nil
	}
	return &command.Result{Content: i18n.T(lang, "word_added_plain", text, translations)}, nil
}

func (r *Router) handleLesson(ctx context.Context, _ string, cc *command.Context) (*command.Result, error) {
	lang := cc.User.InterfaceLang
	if cc.Profile == nil {
		return &command.Result{Content: i18n.T(lang, "need_start")}, nil
	}

	l, resumed, err := r.engine.Start(ctx, cc.Profile.ID)
	if errors.Is(err, lesson.ErrNoWords) {
		return &command.Result{Content: i18n.T(lang, "lesson_empty")}, nil
	}
	if err != nil {
		return nil, err
	}

	q, err := r.engine.NextQuestion(ctx, l, cc.User.NativeLang)
	if errors.Is(err, lesson.ErrLessonFinished) {
		// A resumed lesson where every word already has an attempt.
		summary, err := r.engine.Complete(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		return &command.Result{Content: r.summaryMessage(lang, summary)}, nil
	}
	if err != nil {
		return nil, err
	}
	r.setPending(cc.Profile.ID, l, q)

	var intro string
	if resumed {
		attempted, err := r.store.AttemptedUserWordIDs(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		intro = i18n.T(lang, "lesson_resumed", len(l.WordQueue)-len(attempted))
	} else {
		intro = i18n.T(lang, "lesson_started", l.PlannedCount)
	}

	content, options := r.questionMessage(lang, q)
	return &command.Result{Content: intro + "\n\n" + content, Options: options}, nil
}

func (r *Router) handleStats(ctx context.Context, _ string, cc *command.Context) (*command.Result, error) {
	lang := cc.User.InterfaceLang
	if cc.Profile == nil {
		return &command.Result{Content: i18n.T(lang, "need_start")}, nil
	}
	ps, err := r.store.GetProfileStats(ctx, cc.Profile.ID, r.clock.Now())
	if err != nil {
		return nil, err
	}
	return &command.Result{
		Content: i18n.T(lang, "stats", ps.TotalWords, ps.New, ps.Learning,
			ps.Reviewing, ps.Mastered, ps.DueNow, ps.Accuracy()),
	}, nil
}

func (r *Router) handleNotify(ctx context.Context, args string, cc *command.Context) (*command.Result, error) {
	lang := cc.User.InterfaceLang
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on":
		if err := r.store.SetNotifications(ctx, cc.User.ID, true); err != nil {
			return nil, err
		}
		return &command.Result{Content: i18n.T(lang, "notify_on")}, nil
	case "off":
		if err := r.store.SetNotifications(ctx, cc.User.ID, false); err != nil {
			return nil, err
		}
		return &command.Result{Content: i18n.T(lang, "notify_off")}, nil
	default:
		return &command.Result{Content: i18n.T(lang, "notify_usage")}, nil
	}
}

func (r *Router) handleLang(ctx context.Context, args string, cc *command.Context) (*command.Result, error) {
	target := strings.ToLower(strings.TrimSpace(args))
	if !i18n.Supported(target) {
		return &command.Result{Content: i18n.T(cc.User.InterfaceLang, "lang_usage")}, nil
	}
	if err := r.store.SetInterfaceLang(ctx, cc.User.ID, target); err != nil {
		return nil, err
	}
	return &command.Result{Content: i18n.T(target, "lang_switched", target)}, nil
}

func (r *Router) handleHelp(_ context.Context, _ string, cc *command.Context) (*command.Result, error) {
	lang := cc.User.InterfaceLang
	var lines []string
	for _, cmd := range r.commands.List() {
		lines = append(lines, cmd.Usage+" — "+i18n.T(lang, "cmd_"+cmd.Name))
	}
	return &command.Result{Content: i18n.T(lang, "help", strings.Join(lines, "\n"))}, nil
}

// handleAnswer grades bare text against the profile's in-flight question.
func (r *Router) handleAnswer(ctx context.Context, msg *gateway.InboundMessage, cc *command.Context) {
	lang := cc.User.InterfaceLang
	if cc.Profile == nil {
		r.send(ctx, msg, i18n.T(lang, "need_start"), nil)
		return
	}

	p := r.getPending(cc.Profile.ID)
	if p == nil {
		r.send(ctx, msg, i18n.T(lang, "no_active_lesson"), nil)
		return
	}

	answer := resolveChoice(p.question, msg.Content)
	res, err := r.engine.Answer(ctx, p.lesson, p.question, answer, i18n.Name(lang))
	if err != nil {
		if errors.Is(err, lesson.ErrNoActiveLesson) {
			r.clearPending(cc.Profile.ID)
			r.send(ctx, msg, i18n.T(lang, "no_active_lesson"), nil)
			return
		}
		r.logger.Error("answer failed", zap.Error(err))
		r.send(ctx, msg, i18n.T(lang, "error_generic"), nil)
		return
	}

	feedback := r.feedbackMessage(lang, res)

	if res.Done {
		r.clearPending(cc.Profile.ID)
		r.send(ctx, msg, feedback+"\n\n"+r.summaryMessage(lang, res.Summary), nil)
		return
	}

	next, err := r.engine.NextQuestion(ctx, p.lesson, cc.User.NativeLang)
	if err != nil {
		r.logger.Error("next question failed", zap.Error(err))
		r.clearPending(cc.Profile.ID)
		r.send(ctx, msg, feedback, nil)
		return
	}
	r.setPending(cc.Profile.ID, p.lesson, next)

	content, options := r.questionMessage(lang, next)
	r.send(ctx, msg, feedback+"\n\n"+content, options)
}

// resolveChoice maps a numeric reply to the option text it names.
func resolveChoice(q *lesson.Question, input string) string {
	input = strings.TrimSpace(input)
	if len(q.Options) == 0 {
		return input
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1]
	}
	return input
}

func (r *Router) feedbackMessage(lang string, res *lesson.AnswerResult) string {
	switch {
	case res.Correct && res.Method == store.MethodFuzzy:
		return i18n.T(lang, "answer_correct_typo", res.Expected)
	case res.Correct:
		msg := i18n.T(lang, "answer_correct")
		if res.Feedback != "" {
			msg += " " + res.Feedback
		}
		return msg
	default:
		feedback := res.Feedback
		if feedback == "" {
			feedback = fmt.Sprintf("expected: %s", res.Expected)
		}
		return i18n.T(lang, "answer_incorrect", feedback)
	}
}

func (r *Router) questionMessage(lang string, q *lesson.Question) (string, []string) {
	if q.TestType == store.TestChoice {
		return i18n.T(lang, "question_choice", q.Prompt), q.Options
	}
	return i18n.T(lang, "question_input", q.Prompt), nil
}

func (r *Router) summaryMessage(lang string, s *lesson.Summary) string {
	return i18n.T(lang, "lesson_summary", s.PlannedCount, s.Correct, s.Incorrect,
		100*s.Accuracy, s.Duration.Round(time.Second))
}

func (r *Router) setPending(profileID string, l *store.Lesson, q *lesson.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[profileID] = &pendingQuestion{lesson: l, question: q}
}

func (r *Router) getPending(profileID string) *pendingQuestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[profileID]
}

func (r *Router) clearPending(profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, profileID)
}

func (r *Router) send(ctx context.Context, msg *gateway.InboundMessage, content string, options []string) {
	err := r.gw.Send(ctx, &gateway.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   content,
		Options:   options,
	})
	if err != nil {
		r.logger.Error("send reply failed",
			zap.String("platform", msg.Platform), zap.Error(err))
	}
}
