// Package keys holds the operator's locally stored credentials and
// integration settings (the KeySet) and persists them to slot storage.
package keys

import (
	"strings"
)

// Field names one recognized KeySet entry. The set is closed; see Fields.
type Field string

const (
	OpenAIKey         Field = "openaiKey"
	GitHubToken       Field = "githubToken"
	GitHubRepo        Field = "githubRepo"
	RenderAPIKey      Field = "renderApiKey"
	RenderServiceID   Field = "renderServiceId"
	EditModeKey       Field = "editModeKey"
	TTSKey            Field = "ttsKey"
	WebhooksURL       Field = "webhooksUrl"
	OCRKey            Field = "ocrKey"
	WebIntegrationKey Field = "webIntegrationKey"
	WhatsAppKey       Field = "whatsappKey"
	EmailSMTP         Field = "emailSmtp"
)

// DefaultEditModeKey is the edit key a fresh console starts with.
const DefaultEditModeKey = "1234"

// SchemaVersion is bumped whenever the recognized field set changes.
const SchemaVersion = 1

type fieldInfo struct {
	wire      string
	label     string
	reason    string
	sensitive bool
}

var fieldOrder = []Field{
	OpenAIKey,
	GitHubToken,
	GitHubRepo,
	RenderAPIKey,
	RenderServiceID,
	TTSKey,
	OCRKey,
	WebhooksURL,
	WebIntegrationKey,
	WhatsAppKey,
	EmailSMTP,
	EditModeKey,
}

var fieldTable = map[Field]fieldInfo{
	OpenAIKey:         {wire: "openai_api_key", label: "OpenAI API Key", reason: "openai key missing", sensitive: true},
	GitHubToken:       {wire: "github_token", label: "GitHub Token", reason: "github token missing", sensitive: true},
	GitHubRepo:        {wire: "github_repo", label: "GitHub Repo (owner/repo)", reason: "github repo missing"},
	RenderAPIKey:      {wire: "render_api_key", label: "Render API Key", reason: "render api key missing", sensitive: true},
	RenderServiceID:   {wire: "render_service_id", label: "Render Service ID", reason: "render service id missing"},
	TTSKey:            {wire: "tts_key", label: "TTS Key", reason: "tts key missing", sensitive: true},
	OCRKey:            {wire: "ocr_key", label: "OCR Key", reason: "ocr key missing", sensitive: true},
	WebhooksURL:       {wire: "webhooks_url", label: "Webhooks URL", reason: "webhooks url missing"},
	WebIntegrationKey: {wire: "web_integration_key", label: "Web Integration Key", reason: "web integration key missing", sensitive: true},
	WhatsAppKey:       {wire: "whatsapp_key", label: "WhatsApp Key", reason: "whatsapp key missing", sensitive: true},
	EmailSMTP:         {wire: "email_smtp", label: "Email SMTP (string)", reason: "email smtp missing"},
	EditModeKey:       {wire: "edit_mode_key", label: "Edit Mode Key (required for Ops)", reason: "edit mode key missing"},
}

// Fields returns every recognized field in display order.
func Fields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// Valid reports whether f is a recognized field.
func (f Field) Valid() bool {
	_, ok := fieldTable[f]
	return ok
}

// Wire is the snake_case name the Station backend uses for f.
func (f Field) Wire() string { return fieldTable[f].wire }

func (f Field) Label() string { return fieldTable[f].label }

// MissingReason is the guard message used when f is required but blank.
func (f Field) MissingReason() string {
	if info, ok := fieldTable[f]; ok {
		return info.reason
	}
	return string(f) + " missing"
}

func (f Field) Sensitive() bool { return fieldTable[f].sensitive }

// ParseField resolves a camelCase or snake_case name, case-insensitively.
func ParseField(name string) (Field, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", false
	}
	for _, f := range fieldOrder {
		if strings.ToLower(string(f)) == normalized || fieldTable[f].wire == normalized {
			return f, true
		}
	}
	return "", false
}

func defaultValue(f Field) string {
	if f == EditModeKey {
		return DefaultEditModeKey
	}
	return ""
}

// Mask hides all but the edges of a secret. Short values are fully hidden.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	r := []rune(value)
	if len(r) <= 8 {
		return "****"
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

func looksMasked(value string) bool {
	if value == "****" {
		return true
	}
	r := []rune(value)
	return len(r) == 11 && string(r[4:7]) == "..."
}
