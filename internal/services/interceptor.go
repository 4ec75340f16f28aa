package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
	"github.com/Ananth-NQI/resellerbot-backend/internal/webhook"
)

// Validation errors. Handlers answer these with 400.
var (
	ErrMissingTenant   = errors.New("missing tenant identifier")
	ErrMalformedTenant = errors.New("malformed tenant identifier")
	ErrUnknownTenant   = errors.New("unknown tenant")
	ErrTenantMismatch  = errors.New("tenant does not match instance")
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidTenantID reports whether id has the shape of a tenant key.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// InterceptRequest is one gateway delivery
type InterceptRequest struct {
	Body []byte
	// TenantHint is the optional tenant named on the webhook URL. When set
	// it must match the tenant owning the instance.
	TenantHint string
	// Deliver sends the reply through the tenant's transport.
	Deliver bool
}

// InterceptResult is the decision returned to the webhook caller
type InterceptResult struct {
	Intercepted    bool   `json:"intercepted"`
	Response       string `json:"response,omitempty"`
	NewState       string `json:"new_state,omitempty"`
	ShouldContinue bool   `json:"should_continue"`
	Deduplicated   bool   `json:"deduplicated,omitempty"`
	Delivered      bool   `json:"delivered,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Interceptor runs the per-message pipeline: extraction, dedup, locking,
// navigation, persistence and delivery.
type Interceptor struct {
	store      storage.Store
	dedup      *DedupCache
	locks      *SessionLockManager
	navigator  *Navigator
	dispatcher CommandDispatcher
	sender     *Sender
	timeout    time.Duration
	now        func() time.Time
}

// NewInterceptor wires the pipeline. timeout bounds delivery of the reply.
func NewInterceptor(store storage.Store, dedup *DedupCache, locks *SessionLockManager, navigator *Navigator, dispatcher CommandDispatcher, sender *Sender, timeout time.Duration) *Interceptor {
	return &Interceptor{
		store:      store,
		dedup:      dedup,
		locks:      locks,
		navigator:  navigator,
		dispatcher: dispatcher,
		sender:     sender,
		timeout:    timeout,
		now:        time.Now,
	}
}

func skip(reason string) *InterceptResult {
	return &InterceptResult{ShouldContinue: true, Reason: reason}
}

// Intercept processes one webhook delivery. A non-nil error is always a
// validation error; processing failures come back as a result with
// ShouldContinue set.
func (i *Interceptor) Intercept(ctx context.Context, req InterceptRequest) (result *InterceptResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("panic while intercepting webhook",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result, err = skip("internal_error"), nil
		}
	}()

	if req.TenantHint != "" && !ValidTenantID(req.TenantHint) {
		return nil, ErrMalformedTenant
	}

	ev, err := webhook.Parse(req.Body, "")
	if err != nil {
		return nil, err
	}
	if ev.Instance == "" {
		return nil, ErrMissingTenant
	}
	if !ValidTenantID(ev.Instance) {
		return nil, ErrMalformedTenant
	}

	tenant, err := i.store.GetTenantByInstance(ctx, ev.Instance)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, ev.Instance)
	}
	if err != nil {
		zap.L().Error("tenant lookup failed", zap.String("instance", ev.Instance), zap.Error(err))
		return skip("tenant_lookup_failed"), nil
	}
	if req.TenantHint != "" && req.TenantHint != tenant.ID {
		return nil, ErrTenantMismatch
	}

	switch ev.Name {
	case webhook.EventConnectionUpdate:
		i.recordConnection(ctx, tenant, ev)
		return skip("connection_update"), nil
	case webhook.EventMessagesUpsert:
	default:
		return skip("ignored_event"), nil
	}
	if !tenant.BotEnabled {
		return skip("bot_disabled"), nil
	}

	// Re-parse with the known connected phone so it is never taken as the
	// contact.
	if tenant.ConnectedPhone != "" {
		if ev, err = webhook.Parse(req.Body, tenant.ConnectedPhone); err != nil {
			return nil, err
		}
	}

	// A batch reports the first intercepted message, or the last one when
	// none was intercepted.
	for _, msg := range ev.Messages {
		r := i.handleMessage(ctx, tenant, ev, msg, req.Deliver)
		if result == nil || !result.Intercepted {
			result = r
		}
	}
	if result == nil {
		result = skip("no_messages")
	}
	return result, nil
}

func (i *Interceptor) recordConnection(ctx context.Context, tenant *models.Tenant, ev *webhook.Event) {
	if ev.ConnectionState == "" && ev.ConnectedPhone == "" {
		return
	}
	state := ev.ConnectionState
	if state == "" {
		state = tenant.ConnectionState
	}
	if err := i.store.UpdateTenantConnection(ctx, tenant.ID, state, ev.ConnectedPhone); err != nil {
		zap.L().Warn("failed to record connection state", zap.String("tenant", tenant.ID), zap.Error(err))
		return
	}
	zap.L().Info("instance connection updated",
		zap.String("tenant", tenant.ID),
		zap.String("state", state))
}

func (i *Interceptor) handleMessage(ctx context.Context, tenant *models.Tenant, ev *webhook.Event, msg webhook.Message, deliver bool) (result *InterceptResult) {
	switch {
	case msg.IsGroup:
		return skip("group_message")
	case msg.FromMe:
		return skip("own_message")
	case msg.ContactPhone == "":
		zap.L().Warn("could not resolve sender phone",
			zap.String("event", ev.Name),
			zap.String("instance", ev.Instance),
			zap.String("remote_jid", msg.RemoteJID),
			zap.String("message_id", msg.ID))
		return skip("unresolved_sender")
	case msg.Text == "":
		zap.L().Debug("message without text",
			zap.String("tenant", tenant.ID),
			zap.String("message_id", msg.ID))
		return skip("no_text")
	}

	contact := msg.ContactPhone
	if i.dedup != nil && i.dedup.CheckAndMark(contact, tenant.ID, msg.Text) {
		zap.L().Debug("duplicate delivery dropped",
			zap.String("tenant", tenant.ID),
			zap.String("contact", contact))
		return &InterceptResult{ShouldContinue: false, Deduplicated: true, Reason: "duplicate"}
	}

	lock, err := i.locks.Acquire(ctx, contact, tenant.ID)
	if err != nil {
		zap.L().Error("session lock failed", zap.String("tenant", tenant.ID), zap.String("contact", contact), zap.Error(err))
		return skip("lock_error")
	}
	if !lock.Acquired {
		return &InterceptResult{ShouldContinue: false, Reason: "in_flight"}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := i.locks.Release(releaseCtx, contact, tenant.ID); err != nil {
			zap.L().Error("session unlock failed", zap.String("tenant", tenant.ID), zap.String("contact", contact), zap.Error(err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("panic while processing message",
				zap.String("tenant", tenant.ID),
				zap.String("contact", contact),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = skip("internal_error")
		}
	}()

	i.logMessage(ctx, tenant.ID, contact, models.DirectionInbound, msg.Text)

	sess, err := i.store.GetSession(ctx, contact, tenant.ID)
	if err != nil {
		zap.L().Error("failed to load locked session", zap.String("tenant", tenant.ID), zap.String("contact", contact), zap.Error(err))
		return skip("session_error")
	}

	if lock.Reclaimed {
		if res, handled := i.abandonPendingAction(ctx, tenant, sess, deliver); handled {
			return res
		}
	}

	if msg.PushName != "" {
		c := sess.Ctx()
		if c.PushName != msg.PushName {
			c.PushName = msg.PushName
			_ = sess.SetCtx(c)
		}
	}

	in := ParseInput(msg.Text)
	d, err := i.navigator.Navigate(ctx, tenant, sess, in)
	if err != nil {
		zap.L().Error("navigation failed", zap.String("tenant", tenant.ID), zap.String("contact", contact), zap.Error(err))
		return skip("navigation_error")
	}

	if d.Persist {
		if err := i.store.SaveSession(ctx, sess); err != nil {
			zap.L().Error("failed to save session", zap.String("tenant", tenant.ID), zap.String("contact", contact), zap.Error(err))
		}
	}

	result = &InterceptResult{
		Intercepted:    d.Intercept,
		Response:       d.Response,
		NewState:       d.NewState,
		ShouldContinue: !d.Intercept,
		Reason:         d.Reason,
	}

	if d.Command != nil {
		result.Response = i.dispatch(ctx, *d.Command)
	}

	if result.Response != "" {
		i.logMessage(ctx, tenant.ID, contact, models.DirectionOutbound, result.Response)
		if deliver {
			result.Delivered = i.deliver(ctx, tenant, contact, result.Response)
		}
	}
	zap.L().Info("message processed",
		zap.String("tenant", tenant.ID),
		zap.String("contact", contact),
		zap.String("state", result.NewState),
		zap.Bool("intercepted", result.Intercepted),
		zap.String("reason", result.Reason))
	return result
}

// abandonPendingAction handles a session reclaimed from a crashed processor
// that was in the middle of an external action. The action is not replayed:
// the session goes back to the state that preceded it and the contact is
// asked to retry.
func (i *Interceptor) abandonPendingAction(ctx context.Context, tenant *models.Tenant, sess *models.BotSession, deliver bool) (*InterceptResult, bool) {
	c := sess.Ctx()
	if c.PendingAction == "" {
		return nil, false
	}
	zap.L().Warn("dropping pending action of reclaimed session",
		zap.String("tenant", tenant.ID),
		zap.String("contact", sess.ContactID),
		zap.String("action", c.PendingAction))

	state := c.PendingFromState
	if state == "" {
		state = models.StateStart
	}
	c.PendingAction = ""
	c.PendingFromState = ""
	c.LeaveFlow()
	sess.State = state
	sess.LastInteraction = i.now()
	if err := sess.SetCtx(c); err == nil {
		if err := i.store.SaveSession(ctx, sess); err != nil {
			zap.L().Error("failed to save session", zap.String("tenant", tenant.ID), zap.Error(err))
		}
	}

	res := &InterceptResult{Intercepted: true, Response: trialResumeText, NewState: state, Reason: "pending_action_dropped"}
	i.logMessage(ctx, tenant.ID, sess.ContactID, models.DirectionOutbound, res.Response)
	if deliver {
		res.Delivered = i.deliver(ctx, tenant, sess.ContactID, res.Response)
	}
	return res, true
}

func (i *Interceptor) dispatch(ctx context.Context, cmd CommandRequest) string {
	if i.dispatcher == nil {
		return ""
	}
	text, err := i.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		zap.L().Warn("delegated command failed",
			zap.String("tenant", cmd.TenantID),
			zap.String("command", cmd.Name),
			zap.Error(err))
		return ""
	}
	return text
}

func (i *Interceptor) deliver(ctx context.Context, tenant *models.Tenant, contact, text string) bool {
	if i.sender == nil {
		return false
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()
	to, err := i.sender.Send(sendCtx, tenant, contact, text)
	if err != nil {
		zap.L().Warn("reply delivery failed",
			zap.String("tenant", tenant.ID),
			zap.String("contact", contact),
			zap.Error(err))
		return false
	}
	zap.L().Debug("reply delivered", zap.String("tenant", tenant.ID), zap.String("to", to))
	return true
}

func (i *Interceptor) logMessage(ctx context.Context, tenantID, contact, direction, text string) {
	entry := &models.MessageLog{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ContactID: contact,
		Direction: direction,
		Text:      text,
		CreatedAt: i.now(),
	}
	if err := i.store.AppendMessageLog(ctx, entry); err != nil {
		zap.L().Warn("failed to append message log", zap.String("tenant", tenantID), zap.Error(err))
	}
}
