package services

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// GlobalAction is a navigation command available from any state
type GlobalAction string

const (
	ActionNone  GlobalAction = ""
	ActionBack  GlobalAction = "back"
	ActionHome  GlobalAction = "home"
	ActionMenu  GlobalAction = "menu"
	ActionExit  GlobalAction = "exit"
	ActionHuman GlobalAction = "human"
)

type globalCommand struct {
	action   GlobalAction
	priority int
	words    []string
}

// Checked highest priority first. Words are compared after accent folding,
// so "início" and "inicio" are the same entry.
var globalCommands = []globalCommand{
	{ActionBack, 100, []string{"0", "voltar", "volta", "anterior", "back"}},
	{ActionHome, 90, []string{"#", "inicio", "home", "comecar", "recomecar", "principal"}},
	{ActionMenu, 80, []string{"menu", "opcoes", "cardapio"}},
	{ActionHuman, 70, []string{"humano", "atendente", "atendimento", "falar com atendente", "suporte"}},
	{ActionExit, 60, []string{"sair", "encerrar", "exit", "tchau", "finalizar"}},
}

func init() {
	sort.SliceStable(globalCommands, func(i, j int) bool {
		return globalCommands[i].priority > globalCommands[j].priority
	})
}

// MatchGlobalCommand returns the action whose vocabulary equals the
// normalized input exactly, or ActionNone.
func MatchGlobalCommand(in ParsedInput) GlobalAction {
	text := foldAccents(in.Normalized)
	if text == "" {
		return ActionNone
	}
	for _, cmd := range globalCommands {
		for _, w := range cmd.words {
			if text == w {
				return cmd.action
			}
		}
	}
	return ActionNone
}

// foldAccents lowercases s and strips combining marks.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}
