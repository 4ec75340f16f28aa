package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

// ErrFlowEnded is returned by Advance when the current node has no
// outgoing edges.
var ErrFlowEnded = errors.New("flow ended")

// FlowRunner walks flow graphs
type FlowRunner struct {
	store storage.Store

	mu      sync.Mutex
	regexes map[string]*regexp.Regexp
}

// NewFlowRunner creates a runner reading flows from store
func NewFlowRunner(store storage.Store) *FlowRunner {
	return &FlowRunner{store: store, regexes: make(map[string]*regexp.Regexp)}
}

// Entry returns the entry node of a tenant's flow.
func (f *FlowRunner) Entry(ctx context.Context, tenantID string, flowID uint) (*models.FlowNode, error) {
	node, err := f.store.GetFlowEntryNode(ctx, tenantID, flowID)
	if err != nil {
		return nil, fmt.Errorf("flow %d entry: %w", flowID, err)
	}
	return node, nil
}

// Node loads one node of a flow.
func (f *FlowRunner) Node(ctx context.Context, flowID uint, key string) (*models.FlowNode, error) {
	return f.store.GetFlowNode(ctx, flowID, key)
}

// Advance evaluates the outgoing edges of node against input and returns the
// target of the first matching edge. Edges are tried by descending priority.
func (f *FlowRunner) Advance(ctx context.Context, node *models.FlowNode, input ParsedInput) (*models.FlowNode, error) {
	edges, err := f.store.ListFlowEdges(ctx, node.FlowID, node.NodeKey)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, ErrFlowEnded
	}
	for _, e := range edges {
		if !f.matches(e, input) {
			continue
		}
		next, err := f.store.GetFlowNode(ctx, node.FlowID, e.ToNode)
		if err != nil {
			return nil, fmt.Errorf("flow %d edge %s->%s: %w", node.FlowID, e.FromNode, e.ToNode, err)
		}
		return next, nil
	}
	return nil, ErrInvalidSelection
}

// HasExits reports whether node has outgoing edges.
func (f *FlowRunner) HasExits(ctx context.Context, node *models.FlowNode) (bool, error) {
	edges, err := f.store.ListFlowEdges(ctx, node.FlowID, node.NodeKey)
	if err != nil {
		return false, err
	}
	return len(edges) > 0, nil
}

func (f *FlowRunner) matches(e *models.FlowEdge, input ParsedInput) bool {
	value := strings.TrimSpace(e.ConditionValue)
	switch e.ConditionType {
	case models.ConditionAlways, "":
		return true
	case models.ConditionEquals:
		return foldAccents(value) == foldAccents(input.Normalized)
	case models.ConditionNumeric:
		want, err := strconv.Atoi(value)
		return err == nil && input.IsNumber && input.Number == want
	case models.ConditionContains:
		return value != "" && strings.Contains(foldAccents(input.Normalized), foldAccents(value))
	case models.ConditionRegex:
		re := f.compile(value)
		return re != nil && re.MatchString(input.Raw)
	}
	return false
}

func (f *FlowRunner) compile(pattern string) *regexp.Regexp {
	f.mu.Lock()
	defer f.mu.Unlock()
	if re, ok := f.regexes[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		zap.L().Warn("invalid flow edge regex", zap.String("pattern", pattern), zap.Error(err))
	}
	// Invalid patterns are cached as nil so they are reported once.
	f.regexes[pattern] = re
	return re
}
