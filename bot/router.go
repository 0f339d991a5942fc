// Package bot classifies inbound text into commands and executes them
// against the folder store and the messaging capability.
package bot

import (
	"regexp"
	"strings"

	"github.com/yk2estrella/leitobot3.0/messaging"
)

type Kind string

const (
	KindGreet         Kind = "greet"
	KindHelp          Kind = "help"
	KindTagAll        Kind = "tag_all"
	KindReplaceFolder Kind = "replace_folder"
	KindShowFolder    Kind = "show_folder"
	KindSearchFolders Kind = "search_folders"
	KindCloseGroup    Kind = "close_group"
	KindOpenGroup     Kind = "open_group"
	KindBan           Kind = "ban"
)

// Invocation is a classified command plus its extracted arguments. Payload
// and Lines keep the sender's original casing; only keyword recognition is
// case-insensitive.
type Invocation struct {
	Kind    Kind
	Slot    string
	Payload string
	Lines   []string
}

type scope int

const (
	scopeAny scope = iota
	scopeDirect
	scopeGroup
)

type rule struct {
	kind  Kind
	scope scope
	match func(r *Router, verbatim, lower string) (Invocation, bool)
}

var (
	// The #tag prefix is deliberately case-sensitive; the others are not.
	reTagAll        = regexp.MustCompile(`^#tag\s+"(.+)"$`)
	reReplaceFolder = regexp.MustCompile(`(?is)^#updatefolder(0[1-5])\s+(.+)$`)
	reShowFolder    = regexp.MustCompile(`(?i)^#folder(0[1-5])$`)
	reSearchFolders = regexp.MustCompile(`(?i)^#botsearch\s+"(.+)"$`)
)

// Router matches inbound text against an ordered rule list. Exactly the
// first matching rule fires; text matching no rule is silently ignored so
// the bot never replies to ordinary conversation.
type Router struct {
	wakeWord string
	rules    []rule
}

func NewRouter(wakeWord string) *Router {
	r := &Router{wakeWord: strings.ToLower(strings.TrimSpace(wakeWord))}
	r.rules = []rule{
		{kind: KindGreet, scope: scopeDirect, match: matchGreet},
		{kind: KindHelp, scope: scopeAny, match: matchHelp},
		{kind: KindTagAll, scope: scopeGroup, match: matchTagAll},
		{kind: KindReplaceFolder, scope: scopeAny, match: matchReplaceFolder},
		{kind: KindShowFolder, scope: scopeAny, match: matchShowFolder},
		{kind: KindSearchFolders, scope: scopeAny, match: matchSearchFolders},
		{kind: KindCloseGroup, scope: scopeGroup, match: matchExact("#closegroup", KindCloseGroup)},
		{kind: KindOpenGroup, scope: scopeGroup, match: matchExact("#opengroup", KindOpenGroup)},
		{kind: KindBan, scope: scopeGroup, match: matchExact("#ban", KindBan)},
	}
	return r
}

// Classify returns the first matching invocation for msg, or ok=false when
// no rule applies in the message's conversation context.
func (r *Router) Classify(msg messaging.Message) (Invocation, bool) {
	verbatim := msg.Text
	lower := strings.ToLower(verbatim)
	for _, rl := range r.rules {
		switch rl.scope {
		case scopeDirect:
			if msg.IsGroup {
				continue
			}
		case scopeGroup:
			if !msg.IsGroup {
				continue
			}
		}
		if inv, ok := rl.match(r, verbatim, lower); ok {
			return inv, true
		}
	}
	return Invocation{}, false
}

func matchGreet(r *Router, _ string, lower string) (Invocation, bool) {
	if r.wakeWord == "" || lower != r.wakeWord {
		return Invocation{}, false
	}
	return Invocation{Kind: KindGreet}, true
}

func matchHelp(_ *Router, _ string, lower string) (Invocation, bool) {
	if !strings.HasPrefix(lower, "#help") {
		return Invocation{}, false
	}
	return Invocation{Kind: KindHelp}, true
}

func matchTagAll(_ *Router, verbatim string, _ string) (Invocation, bool) {
	m := reTagAll.FindStringSubmatch(verbatim)
	if m == nil {
		return Invocation{}, false
	}
	return Invocation{Kind: KindTagAll, Payload: m[1]}, true
}

func matchReplaceFolder(_ *Router, verbatim string, _ string) (Invocation, bool) {
	m := reReplaceFolder.FindStringSubmatch(verbatim)
	if m == nil {
		return Invocation{}, false
	}
	return Invocation{
		Kind:  KindReplaceFolder,
		Slot:  m[1],
		Lines: splitBodyLines(m[2]),
	}, true
}

func matchShowFolder(_ *Router, verbatim string, _ string) (Invocation, bool) {
	m := reShowFolder.FindStringSubmatch(verbatim)
	if m == nil {
		return Invocation{}, false
	}
	return Invocation{Kind: KindShowFolder, Slot: m[1]}, true
}

func matchSearchFolders(_ *Router, verbatim string, _ string) (Invocation, bool) {
	m := reSearchFolders.FindStringSubmatch(verbatim)
	if m == nil {
		return Invocation{}, false
	}
	return Invocation{Kind: KindSearchFolders, Payload: m[1]}, true
}

func matchExact(keyword string, kind Kind) func(*Router, string, string) (Invocation, bool) {
	return func(_ *Router, _ string, lower string) (Invocation, bool) {
		if lower != keyword {
			return Invocation{}, false
		}
		return Invocation{Kind: kind}, true
	}
}

// splitBodyLines trims the body as a whole and splits on line breaks;
// individual lines keep their inner spacing and casing.
func splitBodyLines(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	raw := strings.Split(body, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		out = append(out, strings.TrimRight(line, "\r"))
	}
	return out
}
