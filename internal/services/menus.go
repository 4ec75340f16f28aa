package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

var (
	// ErrNoContent means no menu tier has anything for the requested key.
	ErrNoContent = errors.New("no menu content for key")
	// ErrInvalidSelection means the user text matches no option.
	ErrInvalidSelection = errors.New("invalid menu selection")
)

// Menu sources, in resolution order.
const (
	SourceMenuV2     = "menu_v2"
	SourceLegacyMenu = "legacy_menu"
	SourceFlowNode   = "flow_node"
)

const (
	backLine = "0️⃣ Voltar"
	homeLine = "#️⃣ Menu inicial"
)

// MenuOption is one selectable entry of a rendered menu
type MenuOption struct {
	Index       int
	Key         string
	Title       string
	Description string
	Emoji       string
	Section     string
	Type        string
	Payload     string
	NextState   string
	Response    string
}

// RenderedMenu is the resolved content for a state or menu key
type RenderedMenu struct {
	Key       string
	Source    string
	Text      string
	Options   []MenuOption
	AllowBack bool

	// Set for flow nodes only.
	FlowNode *models.FlowNode
}

// MenuResolver is one representation of menus. Resolve returns ErrNoContent
// when the representation has nothing for key.
type MenuResolver interface {
	Name() string
	Resolve(ctx context.Context, tenantID, key string) (*RenderedMenu, error)
}

// MenuEngine tries its resolvers in order and stops at the first hit
type MenuEngine struct {
	resolvers []MenuResolver
}

// NewMenuEngine builds the engine with the three stock tiers.
func NewMenuEngine(store storage.Store) *MenuEngine {
	return &MenuEngine{resolvers: []MenuResolver{
		&MenuV2Resolver{store: store},
		&LegacyMenuResolver{store: store},
		&FlowNodeResolver{store: store},
	}}
}

// NewMenuEngineWith builds an engine over custom resolvers.
func NewMenuEngineWith(resolvers ...MenuResolver) *MenuEngine {
	return &MenuEngine{resolvers: resolvers}
}

// Resolve returns the first tier's content for key.
func (e *MenuEngine) Resolve(ctx context.Context, tenantID, key string) (*RenderedMenu, error) {
	if key == "" {
		return nil, ErrNoContent
	}
	for _, r := range e.resolvers {
		menu, err := r.Resolve(ctx, tenantID, key)
		if err == nil {
			return menu, nil
		}
		if !errors.Is(err, ErrNoContent) {
			// A broken tier must not hide the ones below it.
			zap.L().Warn("menu resolver failed",
				zap.String("resolver", r.Name()),
				zap.String("tenant", tenantID),
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return nil, ErrNoContent
}

// MenuV2Resolver renders the children of a menu tree node
type MenuV2Resolver struct {
	store storage.Store
}

func (r *MenuV2Resolver) Name() string { return SourceMenuV2 }

func (r *MenuV2Resolver) Resolve(ctx context.Context, tenantID, key string) (*RenderedMenu, error) {
	menu, err := r.store.GetMenuV2(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoContent
		}
		return nil, err
	}
	// Orphans are treated as missing.
	if !menu.IsRoot && menu.ParentKey != "" {
		if _, err := r.store.GetMenuV2(ctx, tenantID, menu.ParentKey); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNoContent
			}
			return nil, err
		}
	}
	children, err := r.store.ListMenuV2Children(ctx, tenantID, menu.Key)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, ErrNoContent
	}

	options := make([]MenuOption, 0, len(children))
	for i, c := range children {
		options = append(options, MenuOption{
			Index:       i + 1,
			Key:         c.Key,
			Title:       c.Title,
			Description: c.Description,
			Emoji:       c.Emoji,
			Section:     c.Section,
			Type:        c.OptionType,
			Payload:     c.Payload,
		})
	}

	header := menu.HeaderText
	if header == "" {
		header = "*" + menu.Title + "*"
	}
	allowBack := menu.ShowBack && !menu.IsRoot
	return &RenderedMenu{
		Key:       menu.Key,
		Source:    SourceMenuV2,
		Text:      RenderMenu(header, menu.FooterText, options, allowBack),
		Options:   options,
		AllowBack: allowBack,
	}, nil
}

// LegacyMenuResolver renders a flat menu keyed by state
type LegacyMenuResolver struct {
	store storage.Store
}

func (r *LegacyMenuResolver) Name() string { return SourceLegacyMenu }

func (r *LegacyMenuResolver) Resolve(ctx context.Context, tenantID, key string) (*RenderedMenu, error) {
	menu, err := r.store.GetLegacyMenu(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoContent
		}
		return nil, err
	}
	if len(menu.Options) == 0 {
		return nil, ErrNoContent
	}

	options := make([]MenuOption, 0, len(menu.Options))
	for i, o := range menu.Options {
		options = append(options, MenuOption{
			Index:       i + 1,
			Key:         o.Key,
			Title:       o.Title,
			Description: o.Description,
			Emoji:       o.Emoji,
			NextState:   o.NextState,
			Response:    o.Response,
		})
	}

	var b strings.Builder
	header := menu.HeaderText
	if header == "" {
		header = menu.Title
	}
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	for _, o := range options {
		fmt.Fprintf(&b, "%d - %s%s\n", o.Index, emojiPrefix(o.Emoji), o.Title)
	}
	if menu.FooterText != "" {
		b.WriteString("\n")
		b.WriteString(menu.FooterText)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(backLine)
	b.WriteString("\n")
	b.WriteString(homeLine)

	return &RenderedMenu{
		Key:       menu.Key,
		Source:    SourceLegacyMenu,
		Text:      b.String(),
		Options:   options,
		AllowBack: true,
	}, nil
}

// FlowNodeResolver returns the raw text of the flow node tagged with a state
type FlowNodeResolver struct {
	store storage.Store
}

func (r *FlowNodeResolver) Name() string { return SourceFlowNode }

func (r *FlowNodeResolver) Resolve(ctx context.Context, tenantID, key string) (*RenderedMenu, error) {
	node, err := r.store.FindFlowNodeByState(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoContent
		}
		return nil, err
	}
	if strings.TrimSpace(node.Config.Text) == "" {
		return nil, ErrNoContent
	}
	return &RenderedMenu{
		Key:      key,
		Source:   SourceFlowNode,
		Text:     node.Config.Text,
		FlowNode: node,
	}, nil
}

// RenderMenu lays out options grouped by section in order of first
// appearance, numbering them continuously across sections.
func RenderMenu(header, footer string, options []MenuOption, allowBack bool) string {
	var sections []string
	grouped := make(map[string][]MenuOption)
	for _, o := range options {
		if _, seen := grouped[o.Section]; !seen {
			sections = append(sections, o.Section)
		}
		grouped[o.Section] = append(grouped[o.Section], o)
	}

	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}
	index := 1
	for _, section := range sections {
		b.WriteString("\n")
		if section != "" {
			b.WriteString("*" + section + "*\n")
		}
		for _, o := range grouped[section] {
			fmt.Fprintf(&b, "*%d* - %s%s\n", index, emojiPrefix(o.Emoji), o.Title)
			if d := strings.TrimSpace(o.Description); d != "" {
				b.WriteString("     _" + firstLine(d) + "_\n")
			}
			index++
		}
	}
	if footer != "" {
		b.WriteString("\n")
		b.WriteString(footer)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if allowBack {
		b.WriteString(backLine)
		b.WriteString("\n")
	}
	b.WriteString(homeLine)
	return b.String()
}

// RenderedOrder returns the options in the order RenderMenu numbers them.
func RenderedOrder(options []MenuOption) []MenuOption {
	var sections []string
	grouped := make(map[string][]MenuOption)
	for _, o := range options {
		if _, seen := grouped[o.Section]; !seen {
			sections = append(sections, o.Section)
		}
		grouped[o.Section] = append(grouped[o.Section], o)
	}
	out := make([]MenuOption, 0, len(options))
	for _, s := range sections {
		for _, o := range grouped[s] {
			o.Index = len(out) + 1
			out = append(out, o)
		}
	}
	return out
}

// SelectOption resolves raw user text against menu: 1-based index first,
// then the option key, then a case-insensitive title substring either way.
func SelectOption(menu *RenderedMenu, raw string) (*MenuOption, error) {
	if menu == nil || len(menu.Options) == 0 {
		return nil, ErrInvalidSelection
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrInvalidSelection
	}
	options := RenderedOrder(menu.Options)

	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(options) {
			return &options[n-1], nil
		}
	}
	for i := range options {
		if options[i].Key != "" && strings.EqualFold(options[i].Key, text) {
			return &options[i], nil
		}
	}
	lower := foldAccents(text)
	for i := range options {
		title := foldAccents(strings.TrimSpace(options[i].Title))
		if title == "" {
			continue
		}
		if strings.Contains(title, lower) || strings.Contains(lower, title) {
			return &options[i], nil
		}
	}
	return nil, ErrInvalidSelection
}

// InvalidSelectionText re-renders menu under an error line.
func InvalidSelectionText(menu *RenderedMenu) string {
	return "❌ Opção inválida. Escolha uma das opções abaixo:\n\n" + menu.Text
}

func emojiPrefix(emoji string) string {
	if emoji == "" {
		return ""
	}
	return emoji + " "
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
