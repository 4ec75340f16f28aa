package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
)

func TestFlowAdvance(t *testing.T) {
	store := newTestStore()
	flowID := store.AddFlow(&models.Flow{TenantID: testTenant, Active: true},
		[]*models.FlowNode{
			{NodeKey: "start", IsEntry: true, Config: models.FlowNodeConfig{Text: "Escolha"}},
			{NodeKey: "pix"}, {NodeKey: "um"}, {NodeKey: "cartao"}, {NodeKey: "email"}, {NodeKey: "fallback"},
		},
		[]*models.FlowEdge{
			{FromNode: "start", ToNode: "fallback", ConditionType: models.ConditionAlways, Priority: 0},
			{FromNode: "start", ToNode: "pix", ConditionType: models.ConditionEquals, ConditionValue: "Pix", Priority: 50},
			{FromNode: "start", ToNode: "um", ConditionType: models.ConditionNumeric, ConditionValue: "1", Priority: 40},
			{FromNode: "start", ToNode: "cartao", ConditionType: models.ConditionContains, ConditionValue: "cartão", Priority: 30},
			{FromNode: "start", ToNode: "email", ConditionType: models.ConditionRegex, ConditionValue: `^[^@\s]+@[^@\s]+\.\w+$`, Priority: 20},
			{FromNode: "start", ToNode: "fallback", ConditionType: models.ConditionRegex, ConditionValue: `([`, Priority: 60},
		},
	)
	runner := NewFlowRunner(store)
	ctx := context.Background()

	entry, err := runner.Entry(ctx, testTenant, flowID)
	if err != nil || entry.NodeKey != "start" {
		t.Fatalf("Entry = %+v, %v", entry, err)
	}

	tests := []struct {
		input string
		want  string
	}{
		{"pix", "pix"},
		{"PÍX", "pix"},
		{"1", "um"},
		{"01", "um"},
		{"quero pagar no cartao", "cartao"},
		{"Ana@Loja.com", "email"},
		{"qualquer coisa", "fallback"},
	}
	for _, tt := range tests {
		next, err := runner.Advance(ctx, entry, ParseInput(tt.input))
		if err != nil {
			t.Errorf("Advance(%q): %v", tt.input, err)
			continue
		}
		if next.NodeKey != tt.want {
			t.Errorf("Advance(%q) = %s, want %s", tt.input, next.NodeKey, tt.want)
		}
	}

	exits, err := runner.HasExits(ctx, entry)
	if err != nil || !exits {
		t.Errorf("HasExits(start) = %v, %v", exits, err)
	}
	leaf, _ := runner.Node(ctx, flowID, "pix")
	if _, err := runner.Advance(ctx, leaf, ParseInput("oi")); !errors.Is(err, ErrFlowEnded) {
		t.Errorf("leaf: err = %v, want ErrFlowEnded", err)
	}
}

func TestFlowAdvanceNoMatch(t *testing.T) {
	store := newTestStore()
	flowID := store.AddFlow(&models.Flow{TenantID: testTenant, Active: true},
		[]*models.FlowNode{{NodeKey: "q", IsEntry: true}, {NodeKey: "sim"}},
		[]*models.FlowEdge{{FromNode: "q", ToNode: "sim", ConditionType: models.ConditionEquals, ConditionValue: "sim"}},
	)
	runner := NewFlowRunner(store)
	entry, err := runner.Entry(context.Background(), testTenant, flowID)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if _, err := runner.Advance(context.Background(), entry, ParseInput("talvez")); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("err = %v, want ErrInvalidSelection", err)
	}
	if _, err := runner.Entry(context.Background(), "loja2", flowID); err == nil {
		t.Error("flow of another tenant was returned")
	}
}
