package services

import (
	"reflect"
	"testing"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		number   int
		isNumber bool
		command  string
		args     []string
		keywords []string
	}{
		{name: "empty", raw: "   "},
		{name: "number", raw: " 2 ", number: 2, isNumber: true},
		{name: "zero", raw: "0", number: 0, isNumber: true},
		{name: "long digits are not a number", raw: "5511987654321", keywords: []string{"5511987654321"}},
		{name: "slash command", raw: "/Planos todos", command: "planos", args: []string{"todos"}, keywords: []string{"planos", "todos"}},
		{name: "bang command", raw: "!ajuda", command: "ajuda", args: []string{}, keywords: []string{"ajuda"}},
		{name: "lone slash", raw: "/"},
		{name: "keywords", raw: "Quero um TESTE grátis", keywords: []string{"quero", "teste", "grátis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ParseInput(tt.raw)
			if in.Raw != tt.raw {
				t.Errorf("raw = %q", in.Raw)
			}
			if in.IsNumber != tt.isNumber || in.Number != tt.number {
				t.Errorf("number = %v/%d, want %v/%d", in.IsNumber, in.Number, tt.isNumber, tt.number)
			}
			if in.IsCommand != (tt.command != "") || in.CommandName != tt.command {
				t.Errorf("command = %v/%q, want %q", in.IsCommand, in.CommandName, tt.command)
			}
			if tt.command != "" && len(in.CommandArgs) != len(tt.args) {
				t.Errorf("args = %v, want %v", in.CommandArgs, tt.args)
			}
			if !reflect.DeepEqual(in.Keywords, tt.keywords) {
				t.Errorf("keywords = %v, want %v", in.Keywords, tt.keywords)
			}
		})
	}
}

func TestHasKeyword(t *testing.T) {
	in := ParseInput("quero o teste grátis")
	if !in.HasKeyword("gratis") {
		t.Error("accent folded keyword not found")
	}
	if in.HasKeyword("plano") {
		t.Error("unexpected keyword")
	}
}

func TestMatchGlobalCommand(t *testing.T) {
	tests := []struct {
		raw  string
		want GlobalAction
	}{
		{"0", ActionBack},
		{" Voltar ", ActionBack},
		{"#", ActionHome},
		{"Início", ActionHome},
		{"inicio", ActionHome},
		{"MENU", ActionMenu},
		{"opções", ActionMenu},
		{"atendente", ActionHuman},
		{"falar com atendente", ActionHuman},
		{"sair", ActionExit},
		{"1", ActionNone},
		{"menu principal", ActionNone},
		{"quero voltar", ActionNone},
		{"", ActionNone},
	}
	for _, tt := range tests {
		if got := MatchGlobalCommand(ParseInput(tt.raw)); got != tt.want {
			t.Errorf("MatchGlobalCommand(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestGlobalCommandPriorityOrder(t *testing.T) {
	for i := 1; i < len(globalCommands); i++ {
		if globalCommands[i-1].priority < globalCommands[i].priority {
			t.Fatalf("commands not sorted by priority at %d", i)
		}
	}
	if globalCommands[0].action != ActionBack {
		t.Errorf("highest priority = %q, want back", globalCommands[0].action)
	}
}
