// Package webhook normalizes messaging gateway payloads.
//
// Payload shapes drift between gateway versions: the event name may be
// "MESSAGES_UPSERT" or "messages.upsert", the instance may sit at the top
// level or under data, and data may hold one message or a list. Nothing here
// returns an error for a missing field; lookups report "not found" instead.
package webhook

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Ananth-NQI/resellerbot-backend/internal/utils"
)

// ErrMalformedPayload is returned when the body is not a JSON object.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Canonical event names.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
	EventSendMessage      = "send.message"
)

var instancePaths = []string{
	"instance",
	"instanceName",
	"instance.instanceName",
	"instance.name",
	"data.instance",
	"data.instanceName",
	"data.instance.instanceName",
	"instanceId",
	"data.instanceId",
	"body.instance",
}

var eventPaths = []string{"event", "type", "eventType", "data.event"}

// Event is a normalized webhook delivery
type Event struct {
	Name     string
	Instance string
	// Top-level sender field. Gateways fill it with the connected number of
	// the instance, never with the contact.
	InstancePhone   string
	Messages        []Message
	ConnectionState string
	ConnectedPhone  string
}

// Message is one message of a messages.upsert delivery
type Message struct {
	ID        string
	RemoteJID string
	FromMe    bool
	IsGroup   bool
	PushName  string
	Text      string
	// ContactPhone is the other party of the conversation: the sender for
	// inbound messages and the recipient for messages sent by the instance.
	// Empty when no safe candidate exists.
	ContactPhone string
}

// Parse normalizes body. instancePhone is the tenant's known connected
// number, used in addition to the payload's own sender field to keep the
// instance from being picked as the contact.
func Parse(body []byte, instancePhone string) (*Event, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPayload
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrMalformedPayload
	}

	ev := &Event{
		Name:          NormalizeEventName(firstString(root, eventPaths...)),
		Instance:      ExtractInstance(root),
		InstancePhone: utils.NormalizePhone(root.Get("sender").String()),
	}
	own := []string{utils.NormalizePhone(instancePhone), ev.InstancePhone}

	switch ev.Name {
	case EventConnectionUpdate:
		ev.ConnectionState = strings.ToLower(firstString(root, "data.state", "data.connection", "state"))
		ev.ConnectedPhone = utils.NormalizePhone(firstString(root, "data.wuid", "data.owner", "data.me.id", "data.user.id"))
	case EventMessagesUpsert, EventSendMessage:
		for _, raw := range messageList(root) {
			ev.Messages = append(ev.Messages, extractMessage(root, raw, own))
		}
	}
	return ev, nil
}

// NormalizeEventName maps "MESSAGES_UPSERT", "messages-upsert" and
// "Messages.Upsert" onto "messages.upsert".
func NormalizeEventName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return strings.NewReplacer("_", ".", "-", ".", " ", ".").Replace(name)
}

// ExtractInstance returns the gateway instance name, or "" when none of the
// known paths hold a string.
func ExtractInstance(root gjson.Result) string {
	for _, path := range instancePaths {
		v := root.Get(path)
		if v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func messageList(root gjson.Result) []gjson.Result {
	data := root.Get("data")
	switch {
	case data.Get("messages").IsArray():
		return data.Get("messages").Array()
	case data.IsArray():
		return data.Array()
	case data.Get("key").Exists():
		return []gjson.Result{data}
	}
	return nil
}

func extractMessage(root, raw gjson.Result, own []string) Message {
	jid := raw.Get("key.remoteJid").String()
	msg := Message{
		ID:        raw.Get("key.id").String(),
		RemoteJID: jid,
		FromMe:    raw.Get("key.fromMe").Bool(),
		IsGroup:   isGroupJID(jid),
		PushName:  raw.Get("pushName").String(),
		Text:      ExtractText(raw.Get("message")),
	}
	if msg.IsGroup {
		return msg
	}
	msg.ContactPhone = contactPhone(root, raw, msg.FromMe, own)
	return msg
}

// contactPhone walks the candidate fields in order of authority and returns
// the first valid number that is not the instance itself.
func contactPhone(root, raw gjson.Result, fromMe bool, own []string) string {
	var candidates []string
	if fromMe {
		// remoteJid names the recipient here; the sender is the instance.
		candidates = []string{
			raw.Get("key.remoteJid").String(),
			raw.Get("key.remoteJidAlt").String(),
		}
	} else {
		candidates = []string{
			raw.Get("key.remoteJid").String(),
			raw.Get("key.remoteJidAlt").String(),
			raw.Get("key.senderPn").String(),
			raw.Get("key.participantPn").String(),
			raw.Get("senderPn").String(),
			root.Get("data.sender").String(),
			root.Get("sender").String(),
		}
	}
	for _, c := range candidates {
		if c == "" || isLID(c) || isGroupJID(c) {
			continue
		}
		phone := utils.NormalizePhone(c)
		if !utils.IsValidPhone(phone) || isOwn(phone, own) {
			continue
		}
		return phone
	}
	return ""
}

func isOwn(phone string, own []string) bool {
	for _, o := range own {
		if o != "" && utils.SamePhone(phone, o) {
			return true
		}
	}
	return false
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us") || strings.HasSuffix(jid, "@broadcast") || strings.HasSuffix(jid, "@newsletter")
}

// Linked-device identifiers are opaque and are not phone numbers.
func isLID(jid string) bool {
	return strings.HasSuffix(jid, "@lid")
}

var envelopePaths = []string{
	"ephemeralMessage.message",
	"viewOnceMessage.message",
	"viewOnceMessageV2.message",
	"viewOnceMessageV2Extension.message",
	"documentWithCaptionMessage.message",
	"editedMessage.message",
}

var textPaths = []string{
	"conversation",
	"extendedTextMessage.text",
	"imageMessage.caption",
	"videoMessage.caption",
	"documentMessage.caption",
	"buttonsResponseMessage.selectedDisplayText",
	"buttonsResponseMessage.selectedButtonId",
	"listResponseMessage.singleSelectReply.selectedRowId",
	"listResponseMessage.title",
	"templateButtonReplyMessage.selectedDisplayText",
	"templateButtonReplyMessage.selectedId",
}

// ExtractText unwraps envelope layers and returns the first text variant
// found, or "" when the message carries no text.
func ExtractText(message gjson.Result) string {
	for depth := 0; depth < 3 && message.Exists(); depth++ {
		unwrapped := false
		for _, p := range envelopePaths {
			if inner := message.Get(p); inner.IsObject() {
				message = inner
				unwrapped = true
				break
			}
		}
		if !unwrapped {
			break
		}
	}
	return strings.TrimSpace(firstString(message, textPaths...))
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
