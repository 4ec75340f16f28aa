package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

// Texts used when the tenant has not authored its own.
const (
	defaultWelcome = "👋 Olá{nome}! Seja bem-vindo(a).\n\n" +
		"Escolha uma opção:\n" +
		"1 - 🎁 Teste grátis\n" +
		"2 - 📋 Planos\n" +
		"3 - 👤 Falar com atendente"
	defaultExit         = "👋 Atendimento encerrado. Quando quiser, é só mandar uma mensagem!"
	defaultHandoff      = "👤 Certo! Um atendente vai continuar a conversa com você em instantes."
	notUnderstoodPrefix = "🤔 Não entendi sua mensagem.\n\n"
	trialFailedText     = "😕 Não foi possível gerar seu teste agora. Tente novamente em alguns minutos."
	trialResumeText     = "⚠️ Não conseguimos concluir sua última solicitação. Por favor, tente novamente."
	emptySubmenuText    = "⚠️ Esta opção ainda não possui itens.\n\n"
	planConfirmPrompt   = "\n\nDeseja assinar um plano? Responda *1* para Sim ou *2* para Não."
)

type deviceType struct {
	key   string
	label string
	words []string
}

var deviceTypes = []deviceType{
	{"smart_tv", "📺 Smart TV", []string{"tv", "smart", "smarttv", "televisao"}},
	{"android", "📱 Celular Android", []string{"android", "celular"}},
	{"iphone", "🍎 iPhone / iPad", []string{"iphone", "ipad", "ios"}},
	{"computer", "💻 Computador", []string{"computador", "notebook", "windows", "mac"}},
	{"tv_box", "📦 TV Box", []string{"box", "tvbox"}},
}

// Decision is the outcome of one navigation step
type Decision struct {
	Intercept bool
	Response  string
	NewState  string
	// Command is set when a menu option delegates to the command dispatcher.
	Command *CommandRequest
	// Persist is false when the session must be left untouched.
	Persist bool
	Reason  string
}

// Navigator is the per-contact state machine
type Navigator struct {
	store    storage.Store
	menus    *MenuEngine
	legacy   MenuResolver
	flows    *FlowRunner
	actions  *ActionExecutor
	cooldown time.Duration
	now      func() time.Time
}

// NewNavigator wires the state machine. cooldown is the idle time after
// which a contact is greeted from the start again; tenants may override it.
func NewNavigator(store storage.Store, menus *MenuEngine, flows *FlowRunner, actions *ActionExecutor, cooldown time.Duration) *Navigator {
	return &Navigator{
		store:    store,
		menus:    menus,
		legacy:   &LegacyMenuResolver{store: store},
		flows:    flows,
		actions:  actions,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// turn carries the state of one Navigate call
type turn struct {
	n      *Navigator
	ctx    context.Context
	tenant *models.Tenant
	sess   *models.BotSession
	c      *models.SessionContext
	in     ParsedInput
	root   *models.MenuV2
}

// Navigate computes the reply for in and mutates sess accordingly. The
// caller persists sess when the decision asks for it.
func (n *Navigator) Navigate(ctx context.Context, tenant *models.Tenant, sess *models.BotSession, in ParsedInput) (*Decision, error) {
	if models.IsTerminalState(sess.State) {
		return &Decision{NewState: sess.State, Reason: "terminal_state"}, nil
	}
	if in.IsCommand {
		return &Decision{NewState: sess.State, Reason: "system_command"}, nil
	}

	c := sess.Ctx()
	now := n.now()
	fresh := c.InteractionCount == 0 ||
		(!sess.LastInteraction.IsZero() && now.Sub(sess.LastInteraction) > tenant.MenuCooldown(n.cooldown))
	c.InteractionCount++
	sess.LastInteraction = now

	root, err := n.store.GetRootMenuV2(ctx, tenant.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load root menu: %w", err)
	}

	t := &turn{n: n, ctx: ctx, tenant: tenant, sess: sess, c: &c, in: in, root: root}

	var d *Decision
	if action := MatchGlobalCommand(in); action != ActionNone {
		d = t.global(action)
	} else if root != nil {
		d = t.menuMode(fresh)
	} else {
		d = t.legacyMode(fresh)
	}

	if err := sess.SetCtx(c); err != nil {
		return nil, err
	}
	d.Persist = true
	d.NewState = sess.State
	return d, nil
}

func reply(text string) *Decision {
	return &Decision{Intercept: true, Response: text}
}

func passThrough(reason string) *Decision {
	return &Decision{Reason: reason}
}

// transition moves to dest, pushing the state being left unless it is START
// or dest is terminal.
func (t *turn) transition(dest string) {
	leaving := t.sess.State
	if dest == leaving {
		return
	}
	if leaving != models.StateStart && !models.IsTerminalState(dest) {
		t.sess.Push(leaving)
	}
	t.sess.PreviousState = leaving
	t.sess.State = dest
}

// reset lands on state with an empty stack.
func (t *turn) reset(state string) {
	if t.sess.State != state {
		t.sess.PreviousState = t.sess.State
	}
	t.sess.State = state
	t.sess.Stack = []string{}
	t.c.LeaveFlow()
	t.c.AwaitingInput = false
}

func (t *turn) resetContext() {
	t.c.CurrentMenu = ""
	t.c.AwaitingInput = false
	t.c.LeaveFlow()
	t.c.Vars = nil
	t.c.PendingAction = ""
	t.c.PendingFromState = ""
}

// global runs a navigation command. Its text always comes from whatever is
// authored for the destination.
func (t *turn) global(action GlobalAction) *Decision {
	t.c.LeaveFlow()
	t.c.AwaitingInput = false

	switch action {
	case ActionExit:
		t.transition(models.StateExit)
		t.sess.Stack = []string{}
		return reply(t.terminalText(models.StateExit, t.tenant.ExitText, defaultExit))
	case ActionHuman:
		t.handoff()
		return reply(t.terminalText(models.StateHuman, t.tenant.HandoffText, defaultHandoff))
	}

	if t.root != nil {
		return t.globalMenuMode(action)
	}

	var dest string
	switch action {
	case ActionBack:
		if popped, ok := t.sess.Pop(); ok {
			dest = popped
		} else if t.sess.PreviousState != "" && !models.IsTerminalState(t.sess.PreviousState) {
			dest = t.sess.PreviousState
		} else {
			dest = models.StateStart
		}
		t.sess.State = dest
		t.sess.PreviousState = t.stackTop()
	case ActionHome:
		t.reset(models.StateStart)
		dest = models.StateStart
	case ActionMenu:
		t.transition(models.StateMenu)
		dest = models.StateMenu
	}

	text, err := t.prompt(dest)
	if errors.Is(err, ErrNoContent) && dest != models.StateStart {
		t.reset(models.StateStart)
		text, err = t.prompt(models.StateStart)
	}
	if err != nil {
		return passThrough("no_content")
	}
	return reply(text)
}

func (t *turn) globalMenuMode(action GlobalAction) *Decision {
	target := t.root.Key
	if action == ActionBack {
		if popped, ok := t.sess.Pop(); ok {
			target = popped
		}
	} else {
		t.sess.Stack = []string{}
	}
	if t.sess.State != models.StateMenu {
		t.sess.PreviousState = t.sess.State
	}
	t.sess.State = models.StateMenu

	menu, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, target)
	if err != nil && target != t.root.Key {
		target = t.root.Key
		t.sess.Stack = []string{}
		menu, err = t.n.menus.Resolve(t.ctx, t.tenant.ID, target)
	}
	t.c.CurrentMenu = target
	if err != nil {
		return passThrough("no_content")
	}
	return reply(t.expand(menu.Text))
}

func (t *turn) stackTop() string {
	if len(t.sess.Stack) == 0 {
		return models.StateStart
	}
	return t.sess.Stack[len(t.sess.Stack)-1]
}

func (t *turn) terminalText(state, tenantText, def string) string {
	if menu, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, state); err == nil {
		return t.expand(menu.Text)
	}
	if tenantText != "" {
		return t.expand(tenantText)
	}
	return def
}

func (t *turn) handoff() {
	t.transition(models.StateHuman)
	t.sess.Stack = []string{}
	if t.n.actions == nil {
		return
	}
	if _, err := t.n.actions.StartHandoff(t.ctx, t.tenant.ID, t.sess.ContactID, t.in.Raw); err != nil {
		zap.L().Error("failed to open handoff ticket",
			zap.String("tenant", t.tenant.ID),
			zap.String("contact", t.sess.ContactID),
			zap.Error(err))
	}
}

// menuMode handles a turn for tenants with a menu tree. The current menu is
// tracked in the context; the state stays MENU.
func (t *turn) menuMode(fresh bool) *Decision {
	if fresh || t.c.CurrentMenu == "" {
		return t.renderRoot("")
	}
	if t.c.InFlow() {
		if d := t.flowStep(); d != nil {
			return d
		}
	}

	menu, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, t.c.CurrentMenu)
	if err != nil || menu.Source != SourceMenuV2 {
		zap.L().Warn("current menu vanished, returning to root",
			zap.String("tenant", t.tenant.ID),
			zap.String("menu", t.c.CurrentMenu))
		return t.renderRoot("")
	}

	opt, err := SelectOption(menu, t.in.Raw)
	if err != nil {
		return reply(InvalidSelectionText(menu))
	}

	switch opt.Type {
	case models.OptionSubmenu, "":
		sub, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, opt.Key)
		if err != nil || sub.Source != SourceMenuV2 {
			return reply(emptySubmenuText + menu.Text)
		}
		t.sess.Push(t.c.CurrentMenu)
		t.c.CurrentMenu = opt.Key
		return reply(t.expand(sub.Text))
	case models.OptionMessage:
		return reply(t.expand(opt.Payload))
	case models.OptionLink:
		return reply(fmt.Sprintf("🔗 *%s*\n%s", opt.Title, strings.TrimSpace(opt.Payload)))
	case models.OptionCommand:
		name := strings.TrimLeft(strings.TrimSpace(opt.Payload), "/!")
		if name == "" {
			name = opt.Key
		}
		return &Decision{
			Reason: "delegated_command",
			Command: &CommandRequest{
				TenantID:  t.tenant.ID,
				ContactID: t.sess.ContactID,
				Name:      name,
			},
		}
	case models.OptionFlow:
		flowID := cast.ToUint(strings.TrimSpace(opt.Payload))
		node, err := t.n.flows.Entry(t.ctx, t.tenant.ID, flowID)
		if err != nil {
			zap.L().Warn("menu option points at missing flow",
				zap.String("tenant", t.tenant.ID),
				zap.String("option", opt.Key),
				zap.Error(err))
			return reply(InvalidSelectionText(menu))
		}
		return reply(t.enterNode(node))
	}
	return reply(InvalidSelectionText(menu))
}

func (t *turn) renderRoot(prefix string) *Decision {
	t.resetContext()
	t.sess.Stack = []string{}
	if t.sess.State != models.StateMenu {
		t.sess.PreviousState = t.sess.State
	}
	t.sess.State = models.StateMenu
	t.c.CurrentMenu = t.root.Key
	menu, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, t.root.Key)
	if err != nil {
		return passThrough("no_content")
	}
	return reply(prefix + t.expand(menu.Text))
}

// legacyMode handles a turn for tenants without a menu tree.
func (t *turn) legacyMode(fresh bool) *Decision {
	if fresh {
		t.resetContext()
		t.reset(models.StateStart)
		text, err := t.prompt(models.StateStart)
		if err != nil {
			return passThrough("no_content")
		}
		return reply(text)
	}
	if t.c.InFlow() {
		if d := t.flowStep(); d != nil {
			return d
		}
	}

	menu, err := t.n.legacy.Resolve(t.ctx, t.tenant.ID, t.sess.State)
	if err == nil {
		return t.legacySelection(menu)
	}
	if !errors.Is(err, ErrNoContent) {
		zap.L().Warn("legacy menu lookup failed", zap.String("tenant", t.tenant.ID), zap.Error(err))
	}

	switch t.sess.State {
	case models.StateStart, models.StateMenu:
		return t.startState()
	case models.StateAwaitDev:
		return t.awaitingDevice()
	case models.StateAwaitPlan:
		return t.awaitingPlanConfirmation()
	}

	// Nothing is authored for this state any more (deleted menu or a flow
	// pointer that no longer resolves). Restart instead of passing through
	// on every message.
	zap.L().Warn("no content for state, restarting",
		zap.String("tenant", t.tenant.ID),
		zap.String("contact", t.sess.ContactID),
		zap.String("state", t.sess.State))
	t.reset(models.StateStart)
	text, err := t.prompt(models.StateStart)
	if err != nil {
		return passThrough("no_content")
	}
	return reply(notUnderstoodPrefix + text)
}

func (t *turn) legacySelection(menu *RenderedMenu) *Decision {
	opt, err := SelectOption(menu, t.in.Raw)
	if err != nil {
		return reply(InvalidSelectionText(menu))
	}
	if opt.NextState == "" {
		if opt.Response == "" {
			return reply(InvalidSelectionText(menu))
		}
		return reply(t.expand(opt.Response))
	}

	prevState, prevPrevious := t.sess.State, t.sess.PreviousState
	prevStack := append([]string(nil), t.sess.Stack...)
	t.transition(opt.NextState)
	switch {
	case opt.NextState == models.StateHuman:
		t.handoff()
		return reply(t.terminalText(models.StateHuman, firstNonEmpty(opt.Response, t.tenant.HandoffText), defaultHandoff))
	case opt.NextState == models.StateExit:
		return reply(t.terminalText(models.StateExit, firstNonEmpty(opt.Response, t.tenant.ExitText), defaultExit))
	case opt.Response != "":
		return reply(t.expand(opt.Response))
	}
	text, err := t.prompt(opt.NextState)
	if err != nil {
		// Nothing authored for the target; stay where we were.
		t.sess.State, t.sess.PreviousState, t.sess.Stack = prevState, prevPrevious, prevStack
		return reply(InvalidSelectionText(menu))
	}
	return reply(text)
}

// prompt returns the text shown on arriving at state. Authored content wins
// over built-in prompts.
func (t *turn) prompt(state string) (string, error) {
	if menu, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, state); err == nil {
		if menu.FlowNode != nil {
			return t.enterNode(menu.FlowNode), nil
		}
		return t.expand(menu.Text), nil
	}
	switch state {
	case models.StateStart, models.StateMenu:
		return t.expand(firstNonEmpty(t.tenant.WelcomeText, defaultWelcome)), nil
	case models.StateAwaitDev:
		return devicePrompt(), nil
	case models.StateAwaitPlan:
		return t.planPrompt(), nil
	}
	return "", ErrNoContent
}

func devicePrompt() string {
	var b strings.Builder
	b.WriteString("📲 Em qual aparelho você vai assistir?\n\n")
	for i, d := range deviceTypes {
		fmt.Fprintf(&b, "%d - %s\n", i+1, d.label)
	}
	b.WriteString("\n" + backLine)
	return b.String()
}

func (t *turn) planPrompt() string {
	list, err := t.n.actions.FetchPlanList(t.ctx, t.tenant.ID)
	if err != nil {
		zap.L().Warn("failed to list plans", zap.String("tenant", t.tenant.ID), zap.Error(err))
		list = "📋 Fale com um atendente para conhecer nossos planos."
	}
	return list + planConfirmPrompt
}

func (t *turn) startState() *Decision {
	switch {
	case t.in.Number == 1 || t.in.HasKeyword("teste", "testar", "trial", "gratis"):
		t.transition(models.StateAwaitDev)
		return reply(devicePrompt())
	case t.in.Number == 2 || t.in.HasKeyword("planos", "plano", "precos", "valores"):
		t.transition(models.StateAwaitPlan)
		return reply(t.planPrompt())
	case t.in.Number == 3:
		t.handoff()
		return reply(t.terminalText(models.StateHuman, t.tenant.HandoffText, defaultHandoff))
	}
	text, _ := t.prompt(models.StateStart)
	return reply(notUnderstoodPrefix + text)
}

func (t *turn) awaitingDevice() *Decision {
	var chosen *deviceType
	if t.in.IsNumber && t.in.Number >= 1 && t.in.Number <= len(deviceTypes) {
		chosen = &deviceTypes[t.in.Number-1]
	} else {
		for i := range deviceTypes {
			if t.in.HasKeyword(deviceTypes[i].words...) {
				chosen = &deviceTypes[i]
				break
			}
		}
	}
	if chosen == nil {
		return reply("❌ Opção inválida.\n\n" + devicePrompt())
	}
	text := t.runTrial(chosen.key, t.in.Raw)
	t.reset(models.StateStart)
	return reply(text)
}

func (t *turn) awaitingPlanConfirmation() *Decision {
	switch {
	case t.in.Number == 1 || t.in.HasKeyword("sim", "quero", "assinar"):
		t.handoff()
		return reply("✅ Ótimo! Um atendente vai finalizar sua assinatura em instantes.")
	case t.in.Number == 2 || t.in.HasKeyword("nao", "agora"):
		t.reset(models.StateStart)
		text, _ := t.prompt(models.StateStart)
		return reply(text)
	}
	return reply("❌ Responda *1* para Sim ou *2* para Não." + "\n\n" + backLine)
}

// runTrial calls the trial provisioning with a pending-action marker
// persisted around it. A processor that reclaims this session after a crash
// finds the marker and does not replay the call.
func (t *turn) runTrial(deviceType, deviceInfo string) string {
	t.c.PendingAction = models.ActionGenerateTrial
	t.c.PendingFromState = t.sess.State
	if err := t.persist(); err != nil {
		zap.L().Warn("failed to persist pending action", zap.String("tenant", t.tenant.ID), zap.Error(err))
	}

	res, err := t.n.actions.GenerateTrial(t.ctx, t.tenant.ID, t.sess.ContactID, deviceType, deviceInfo)
	t.c.PendingAction = ""
	t.c.PendingFromState = ""

	if err != nil || res == nil || !res.Success {
		reason := ""
		if res != nil {
			reason = res.Reason
		}
		zap.L().Warn("trial generation failed",
			zap.String("tenant", t.tenant.ID),
			zap.String("contact", t.sess.ContactID),
			zap.String("reason", reason),
			zap.Error(err))
		return trialFailedText
	}
	return t.n.actions.TrialMessage(res)
}

func (t *turn) persist() error {
	if err := t.sess.SetCtx(*t.c); err != nil {
		return err
	}
	return t.n.store.SaveSession(t.ctx, t.sess)
}

// flowStep advances the active flow. It returns nil when the flow pointer
// is stale and the caller should handle the turn normally.
func (t *turn) flowStep() *Decision {
	node, err := t.n.flows.Node(t.ctx, t.c.FlowID, t.c.FlowNode)
	if err != nil {
		zap.L().Warn("active flow node missing",
			zap.String("tenant", t.tenant.ID),
			zap.Uint("flow", t.c.FlowID),
			zap.String("node", t.c.FlowNode))
		t.c.LeaveFlow()
		return nil
	}
	if node.Config.CaptureVar != "" {
		t.c.SetVar(node.Config.CaptureVar, strings.TrimSpace(t.in.Raw))
	}
	t.c.AwaitingInput = false

	next, err := t.n.flows.Advance(t.ctx, node, t.in)
	switch {
	case errors.Is(err, ErrInvalidSelection):
		return reply("❌ Opção inválida.\n\n" + t.expand(node.Config.Text))
	case errors.Is(err, ErrFlowEnded):
		return t.endFlow("")
	case err != nil:
		zap.L().Error("flow advance failed", zap.String("tenant", t.tenant.ID), zap.Error(err))
		return t.endFlow(notUnderstoodPrefix)
	}
	return reply(t.enterNode(next))
}

// endFlow returns to the current menu (menu mode) or START (legacy mode).
func (t *turn) endFlow(prefix string) *Decision {
	t.c.LeaveFlow()
	if t.root != nil {
		if t.c.CurrentMenu == "" {
			return t.renderRoot(prefix)
		}
		menu, err := t.n.menus.Resolve(t.ctx, t.tenant.ID, t.c.CurrentMenu)
		if err != nil {
			return t.renderRoot(prefix)
		}
		t.sess.State = models.StateMenu
		return reply(prefix + t.expand(menu.Text))
	}
	t.reset(models.StateStart)
	text, _ := t.prompt(models.StateStart)
	return reply(prefix + text)
}

// enterNode makes node current, runs its action and returns its text.
func (t *turn) enterNode(node *models.FlowNode) string {
	t.c.FlowID = node.FlowID
	t.c.FlowNode = node.NodeKey
	t.c.AwaitingInput = node.Config.CaptureVar != ""

	if node.StateName != "" {
		if t.root != nil {
			t.sess.State = node.StateName
		} else {
			t.transition(node.StateName)
		}
	} else if t.root != nil || t.sess.State == models.StateStart {
		t.sess.State = models.StateFlow
	}

	text := t.expand(node.Config.Text)
	switch node.Config.Action {
	case models.ActionGenerateTrial:
		result := t.runTrial(t.c.Vars["device_type"], t.c.Vars["device_info"])
		text = joinNonEmpty(text, result)
	case models.ActionHumanHandoff:
		t.c.LeaveFlow()
		t.handoff()
		return firstNonEmpty(text, t.terminalText(models.StateHuman, t.tenant.HandoffText, defaultHandoff))
	case models.ActionPlanList:
		if !strings.Contains(node.Config.Text, "{planos}") && !strings.Contains(node.Config.Text, "{{plans}}") {
			list, err := t.n.actions.FetchPlanList(t.ctx, t.tenant.ID)
			if err == nil {
				text = joinNonEmpty(text, list)
			}
		}
	}

	exits, err := t.n.flows.HasExits(t.ctx, node)
	if err == nil && !exits {
		t.c.LeaveFlow()
		if t.root != nil {
			t.sess.State = models.StateMenu
		} else {
			if t.sess.State != models.StateStart {
				t.sess.PreviousState = t.sess.State
			}
			t.sess.State = models.StateStart
		}
	}
	return text
}

// expand substitutes {nome}, {telefone}, {planos}, {{plans}} and {{var}}
// placeholders.
func (t *turn) expand(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	name := ""
	if t.c.PushName != "" {
		name = ", " + t.c.PushName
	}
	text = strings.ReplaceAll(text, "{nome}", name)
	text = strings.ReplaceAll(text, "{telefone}", t.sess.ContactID)
	if strings.Contains(text, "{planos}") || strings.Contains(text, "{{plans}}") {
		list, err := t.n.actions.FetchPlanList(t.ctx, t.tenant.ID)
		if err != nil {
			list = ""
		}
		text = strings.ReplaceAll(text, "{planos}", list)
		text = strings.ReplaceAll(text, "{{plans}}", list)
	}
	for k, v := range t.c.Vars {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	return text
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
