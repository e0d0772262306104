// internal/service/template.go
package service

import (
	"strings"

	"github.com/mailkite/campaign-engine/internal/model"
)

// RenderForRecipient substitutes {name} and {email} placeholders in campaign
// content. Empty recipient names render as "there" so greetings stay usable.
func RenderForRecipient(content string, r model.Recipient) string {
	name := r.Name
	if name == "" {
		name = "there"
	}
	out := strings.ReplaceAll(content, "{name}", name)
	out = strings.ReplaceAll(out, "{email}", r.Email)
	return out
}
