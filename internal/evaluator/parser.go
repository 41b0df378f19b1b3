package evaluator

import (
	"encoding/json"
	"sort"
	"strings"
)

// Message is a single flattened conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type exportConversation struct {
	Mapping map[string]exportNode `json:"mapping"`
}

type exportNode struct {
	Message *exportMessage `json:"message"`
}

type exportMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"content"`
}

// FlattenConversations extracts {role, content} messages from an uploaded
// conversation list. Two item shapes are accepted: pre-parsed messages, and
// raw ChatGPT export conversations carrying a node mapping. Only user and
// assistant turns with textual content are kept; anything unrecognized is
// skipped rather than failing the evaluation.
func FlattenConversations(items []json.RawMessage) []Message {
	var out []Message
	for _, raw := range items {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err == nil && msg.Role != "" && msg.Content != "" {
			out = append(out, msg)
			continue
		}

		var conv exportConversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			continue
		}
		out = append(out, flattenExport(conv)...)
	}
	return out
}

// flattenExport walks a ChatGPT export mapping tree. Node ids are visited in
// sorted order so the flattening is deterministic.
func flattenExport(conv exportConversation) []Message {
	ids := make([]string, 0, len(conv.Mapping))
	for id := range conv.Mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Message
	for _, id := range ids {
		node := conv.Mapping[id]
		if node.Message == nil {
			continue
		}
		role := node.Message.Author.Role
		if role != "user" && role != "assistant" {
			continue
		}

		var parts []string
		for _, rawPart := range node.Message.Content.Parts {
			var text string
			if err := json.Unmarshal(rawPart, &text); err != nil {
				// Non-text part (image pointer etc.), skip.
				continue
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, Message{Role: role, Content: strings.Join(parts, "\n")})
	}
	return out
}
